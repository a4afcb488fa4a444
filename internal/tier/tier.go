// Package tier maps catalog difficulty levels to display names.
package tier

import "fmt"

var bands = []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond", "Ruby"}

var romans = []string{"V", "IV", "III", "II", "I"}

var colors = []string{"#AD5600", "#435F7A", "#EC9A00", "#27E2A4", "#00B4FC", "#FF0062"}

const unratedColor = "#2D2D2D"

// Name returns the human-readable tier name for a level.
func Name(level int) string {
	if level <= 0 {
		return "Unrated"
	}
	idx := (level - 1) / 5
	if idx >= len(bands) {
		return "Master"
	}
	return fmt.Sprintf("%s %s", bands[idx], romans[(level-1)%5])
}

// Short returns a compact label such as "G3" for tables.
func Short(level int) string {
	if level <= 0 {
		return "-"
	}
	idx := (level - 1) / 5
	if idx >= len(bands) {
		return "M"
	}
	return fmt.Sprintf("%c%d", bands[idx][0], 5-(level-1)%5)
}

// Color returns the hex color for a level's band. Master shares Ruby's color.
func Color(level int) string {
	if level <= 0 {
		return unratedColor
	}
	idx := min((level-1)/5, len(colors)-1)
	return colors[idx]
}
