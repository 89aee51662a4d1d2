package alerts

// Bit positions of the firmware alert bitmask reported by the devices
// themselves, distinct from the server-side rule evaluation above.
var maskLabels = []struct {
	name string
	bit  int
}{
	{"overtemp", 1},
	{"airflow_fail", 2},
	{"sensor_fail", 4},
	{"program_fail", 8},
	{"bad_posture", 16},
}

// DecodeMask expands a firmware alert bitmask into its label names.
func DecodeMask(mask int) []string {
	out := []string{}
	for _, l := range maskLabels {
		if mask&l.bit != 0 {
			out = append(out, l.name)
		}
	}
	return out
}
