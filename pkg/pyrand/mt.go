package pyrand

import (
	"math"
	"math/bits"
)

const (
	n         = 624
	m         = 397
	matrixA   = 0x9908b0df
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
)

// Rand is an MT19937 generator. It is not safe for concurrent use.
type Rand struct {
	mt  [n]uint32
	mti int
}

// New returns a generator seeded like CPython's random.seed(seed).
func New(seed int64) *Rand {
	r := &Rand{}
	r.Seed(seed)
	return r
}

// Seed reseeds the generator.
func (r *Rand) Seed(seed int64) {
	var mag uint64
	if seed < 0 {
		mag = uint64(-(seed + 1)) + 1
	} else {
		mag = uint64(seed)
	}

	key := make([]uint32, 0, 2)
	for mag != 0 {
		key = append(key, uint32(mag))
		mag >>= 32
	}
	if len(key) == 0 {
		key = append(key, 0)
	}
	r.initByArray(key)
}

func (r *Rand) initGenrand(s uint32) {
	r.mt[0] = s
	for i := 1; i < n; i++ {
		r.mt[i] = 1812433253*(r.mt[i-1]^(r.mt[i-1]>>30)) + uint32(i)
	}
	r.mti = n
}

func (r *Rand) initByArray(key []uint32) {
	r.initGenrand(19650218)
	i, j := 1, 0
	k := n
	if len(key) > k {
		k = len(key)
	}
	for ; k > 0; k-- {
		r.mt[i] = (r.mt[i] ^ ((r.mt[i-1] ^ (r.mt[i-1] >> 30)) * 1664525)) + key[j] + uint32(j)
		i++
		j++
		if i >= n {
			r.mt[0] = r.mt[n-1]
			i = 1
		}
		if j >= len(key) {
			j = 0
		}
	}
	for k = n - 1; k > 0; k-- {
		r.mt[i] = (r.mt[i] ^ ((r.mt[i-1] ^ (r.mt[i-1] >> 30)) * 1566083941)) - uint32(i)
		i++
		if i >= n {
			r.mt[0] = r.mt[n-1]
			i = 1
		}
	}
	r.mt[0] = 0x80000000
}

func (r *Rand) twist() {
	for k := 0; k < n; k++ {
		y := (r.mt[k] & upperMask) | (r.mt[(k+1)%n] & lowerMask)
		next := r.mt[(k+m)%n] ^ (y >> 1)
		if y&1 != 0 {
			next ^= matrixA
		}
		r.mt[k] = next
	}
	r.mti = 0
}

// Uint32 returns the next tempered 32-bit output.
func (r *Rand) Uint32() uint32 {
	if r.mti >= n {
		r.twist()
	}
	y := r.mt[r.mti]
	r.mti++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// GetRandBits returns k random bits, 1 <= k <= 32.
func (r *Rand) GetRandBits(k int) uint32 {
	if k <= 0 {
		return 0
	}
	if k > 32 {
		k = 32
	}
	return r.Uint32() >> (32 - k)
}

// RandBelow returns a uniform value in [0, bound) by rejection sampling. bound must be positive.
func (r *Rand) RandBelow(bound int) int {
	if bound <= 0 {
		return 0
	}
	k := bits.Len(uint(bound))
	v := int(r.GetRandBits(k))
	for v >= bound {
		v = int(r.GetRandBits(k))
	}
	return v
}

// Sample returns k distinct indices from [0, population) in selection order,
// matching random.sample(range(population), k). It panics if k is out of range.
func (r *Rand) Sample(population, k int) []int {
	if k < 0 || k > population {
		panic("pyrand: sample larger than population or is negative")
	}

	setsize := 21
	if k > 5 {
		setsize += int(math.Pow(4, math.Ceil(math.Log(float64(3*k))/math.Log(4))))
	}

	result := make([]int, k)
	if population <= setsize {
		pool := make([]int, population)
		for i := range pool {
			pool[i] = i
		}
		for i := 0; i < k; i++ {
			j := r.RandBelow(population - i)
			result[i] = pool[j]
			pool[j] = pool[population-i-1]
		}
		return result
	}

	selected := make(map[int]struct{}, k)
	for i := 0; i < k; i++ {
		j := r.RandBelow(population)
		for {
			if _, dup := selected[j]; !dup {
				break
			}
			j = r.RandBelow(population)
		}
		selected[j] = struct{}{}
		result[i] = j
	}
	return result
}
