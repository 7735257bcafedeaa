// Package timefmt форматирует длительности (целые секунды) для отображения.
package timefmt

import "fmt"

// Clock - HH:MM:SS, отрицательное значение считается нулём
func Clock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Detailed - "2h 30m 15s" без нулевых частей.
// Начиная с десяти часов секунды не показываются.
func Detailed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	restSeconds := seconds % 60
	if minutes < 60 {
		if restSeconds > 0 {
			return fmt.Sprintf("%dm %ds", minutes, restSeconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	restMinutes := minutes % 60
	out := fmt.Sprintf("%dh", hours)
	if restMinutes > 0 {
		out += fmt.Sprintf(" %dm", restMinutes)
	}
	if restSeconds > 0 && hours < 10 {
		out += fmt.Sprintf(" %ds", restSeconds)
	}
	return out
}

// HoursMinutes - "1h 5m", меньше часа - "5m"
func HoursMinutes(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
