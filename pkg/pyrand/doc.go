// Package pyrand is a Mersenne Twister (MT19937) generator whose seeding and
// sampling reproduce CPython's random module bit for bit.
//
// Card draws must keep producing the same spread for the same magic number and
// age across releases, including spreads drawn by earlier versions of the bot
// that called random.seed(n) followed by random.sample(range(78), k). The
// contract is therefore fixed to the following algorithm:
//
// Seeding (random.seed with an int):
//
//   - The key is |seed| split into 32-bit little-endian words; zero uses the key [0].
//   - The state is filled by init_genrand(19650218), then mixed with the key by
//     init_by_array exactly as in the MT19937 reference code, and mt[0] is set
//     to 0x80000000.
//
// Output:
//
//   - Uint32 is the tempered MT19937 output.
//   - GetRandBits(k), for 1 <= k <= 32, is Uint32() >> (32-k).
//   - RandBelow(n) draws GetRandBits(bitlen(n)) until the value is below n.
//
// Sampling (random.sample(range(n), k)):
//
//   - setsize is 21, plus 4^ceil(log4(3k)) when k > 5.
//   - When n <= setsize a pool of 0..n-1 is walked: j = RandBelow(n-i), take pool[j],
//     then pool[j] = pool[n-i-1].
//   - Otherwise indices are drawn with RandBelow(n) and redrawn while already selected.
//
// For a 78-card deck this means draws of up to five cards use the rejection walk
// and larger draws use the pool walk.
package pyrand
