package svcsched

import (
	"regexp"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// datePattern matches the YYYY-MM-DD shape before the calendar check.
var datePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// daysInMonth holds the day count per month; index 0 is unused.
var daysInMonth = [...]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// currentDate formats t as a local YYYY-MM-DD date string.
func currentDate(t time.Time) string {
	return t.Local().Format(dateLayout)
}

// validDate reports whether s is a well-formed YYYY-MM-DD string that
// names a real calendar date, accounting for leap years.
func validDate(s string) bool {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 {
		return false
	}

	leap := (year%4 == 0 && year%100 != 0) || year%400 == 0
	maxDays := daysInMonth[month]
	if month == 2 && leap {
		maxDays = 29
	}

	return day >= 1 && day <= maxDays
}
