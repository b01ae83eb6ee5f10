// Package format renders numbers, sizes and times for display.
package format

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"vortexx/internal/models"
)

// Number abbreviates counts: 999, 1.2K, 3.4M.
func Number(n int) string {
	switch {
	case n >= 1_000_000:
		return oneDecimal(float64(n)/1_000_000) + "M"
	case n >= 1_000:
		return oneDecimal(float64(n)/1_000) + "K"
	}
	return strconv.Itoa(n)
}

func oneDecimal(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', 1, 64), ".0")
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FileSize renders a byte count with up to two decimals, e.g. "1.5 MB".
func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	i = min(i, len(sizeUnits)-1)
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// TimeAgo describes how long before now the unix-millisecond timestamp ts was.
func TimeAgo(ts int64, now time.Time) string {
	const (
		minute = int64(time.Minute / time.Millisecond)
		hour   = 60 * minute
		day    = 24 * hour
		week   = 7 * day
		month  = 30 * day
		year   = 365 * day
	)
	diff := now.UnixMilli() - ts
	switch {
	case diff < minute:
		return "just now"
	case diff < hour:
		return plural(diff/minute, "minute")
	case diff < day:
		return plural(diff/hour, "hour")
	case diff < week:
		return plural(diff/day, "day")
	case diff < month:
		return plural(diff/week, "week")
	case diff < year:
		return plural(diff/month, "month")
	}
	return plural(diff/year, "year")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Duration renders a media length as m:ss or h:mm:ss.
func Duration(seconds int) string {
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// StoryTimeLeft renders the time until a story created at ts expires, e.g. "23h 5m".
func StoryTimeLeft(ts int64, now time.Time) string {
	left := storyRemaining(ts, now)
	return fmt.Sprintf("%dh %dm", int(left.Hours()), int(left.Minutes())%60)
}

// StoryCountdown is StoryTimeLeft as a clock, e.g. "23:04:59".
func StoryCountdown(ts int64, now time.Time) string {
	return Duration(int(storyRemaining(ts, now) / time.Second))
}

func storyRemaining(ts int64, now time.Time) time.Duration {
	return max(models.StoryLifetime-now.Sub(time.UnixMilli(ts)), 0)
}

// Initials returns up to two upper-case initials of name.
func Initials(name string) string {
	var b strings.Builder
	count := 0
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		if count++; count == 2 {
			break
		}
	}
	return b.String()
}

// EscapeHTML escapes text for safe inclusion in markup.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}
