package model

import "time"

// UndefinedDate marks a date the user never set.
var UndefinedDate = time.Date(101, time.January, 1, 0, 0, 0, 0, time.UTC)

// IsDateUndefined is true for UndefinedDate and any date before year 102.
func IsDateUndefined(t time.Time) bool {
	return t.IsZero() || t.UTC().Year() <= UndefinedDate.Year()
}

// DBTimeLayout is how metadata.db stores dates.
const DBTimeLayout = "2006-01-02 15:04:05.999999-07:00"

func FormatDBTime(t time.Time) string {
	return t.UTC().Format(DBTimeLayout)
}
