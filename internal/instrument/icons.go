package instrument

import "fmt"

// batteryIcon picks an mdi battery icon for a charge level, rounded to
// the nearest decade the icon set provides.
func batteryIcon(level int, charging bool) string {
	decade := (level + 5) / 10 * 10
	if decade < 10 {
		if charging {
			return "mdi:battery-charging-outline"
		}
		return "mdi:battery-outline"
	}
	if decade >= 100 {
		if charging {
			return "mdi:battery-charging-100"
		}
		return "mdi:battery"
	}
	if charging {
		return fmt.Sprintf("mdi:battery-charging-%d", decade)
	}
	return fmt.Sprintf("mdi:battery-%d", decade)
}
