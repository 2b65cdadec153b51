// Package validate checks user input collected by the dialogue. Error messages are shown to the
// user as-is.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Input bounds.
const (
	MinNameLen = 2
	MaxNameLen = 50
	MinAge     = 6
	MaxAge     = 120
	MinMagic   = 1
	MaxMagic   = 999
)

// Error is a user-facing validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Field + ": " + e.Message }

func fail(field, msg string) error { return &Error{Field: field, Message: msg} }

// Message returns the user-facing text of a validation error, or err's text for other errors.
func Message(err error) string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

var (
	nameChars = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s\-]+$`)
	dateForm  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
)

// Name validates and normalizes a user name: trimmed, inner whitespace collapsed,
// each word title-cased.
func Name(text string) (string, error) {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return "", fail("name", "Имя не может быть пустым")
	}
	n := utf8.RuneCountInString(cleaned)
	if n < MinNameLen {
		return "", fail("name", "Имя должно содержать минимум 2 символа")
	}
	if n > MaxNameLen {
		return "", fail("name", "Имя не должно быть длиннее 50 символов")
	}
	if !nameChars.MatchString(cleaned) {
		return "", fail("name", "Имя должно содержать только буквы, пробелы и дефисы")
	}
	if !strings.ContainsFunc(cleaned, unicode.IsLetter) {
		return "", fail("name", "Имя должно содержать хотя бы одну букву")
	}
	return titleCase(cleaned), nil
}

// titleCase upper-cases the first letter of every space- or hyphen-separated part.
func titleCase(s string) string {
	runes := []rune(s)
	start := true
	for i, r := range runes {
		if r == ' ' || r == '-' {
			start = true
			continue
		}
		if start {
			runes[i] = unicode.ToUpper(r)
			start = false
		}
	}
	return string(runes)
}

// Birthdate parses DD.MM.YYYY, rejects impossible and future dates and ages outside
// [MinAge, MaxAge]. It returns the date and the age on now.
func Birthdate(text string, now time.Time) (time.Time, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, 0, fail("birthdate", "Дата рождения не может быть пустой")
	}
	m := dateForm.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, 0, fail("birthdate", "Неверный формат даты. Используйте ДД.ММ.ГГГГ (например: 15.03.1990)")
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	birth := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if month < 1 || month > 12 || birth.Day() != day || birth.Month() != time.Month(month) {
		return time.Time{}, 0, fail("birthdate", "Некорректная дата. Проверьте день и месяц")
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !birth.Before(today) {
		return time.Time{}, 0, fail("birthdate", "Дата рождения не может быть в будущем")
	}

	age := Age(birth, now)
	if age < MinAge {
		return time.Time{}, 0, fail("birthdate", fmt.Sprintf("Минимальный возраст для использования бота: %d лет", MinAge))
	}
	if age > MaxAge {
		return time.Time{}, 0, fail("birthdate", fmt.Sprintf("Максимальный возраст: %d лет. Проверьте правильность даты", MaxAge))
	}
	return birth, age, nil
}

// Age returns the number of full years between birth and now.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

const isoDateForm = "2006-01-02"

// ParseISODate parses a stored YYYY-MM-DD birthdate.
func ParseISODate(s string) (time.Time, error) {
	return time.Parse(isoDateForm, s)
}

// FormatISODate formats a birthdate for storage.
func FormatISODate(t time.Time) string {
	return t.Format(isoDateForm)
}

// MagicNumber parses the user's magic number: digits only, in [MinMagic, MaxMagic].
func MagicNumber(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fail("magic_number", "Магическое число не может быть пустым")
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, fail("magic_number", "Введите целое число")
		}
	}
	if len(text) > 4 {
		return 0, fail("magic_number", "Число должно быть от 1 до 999")
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fail("magic_number", "Введите целое число")
	}
	if n < MinMagic || n > MaxMagic {
		return 0, fail("magic_number", "Число должно быть от 1 до 999")
	}
	return n, nil
}
