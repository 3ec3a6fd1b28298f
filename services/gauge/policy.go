package gauge

// ThresholdPriority hints how urgently the external current monitor
// should honor a new threshold. A matched table entry tightens the
// monitor; falling back to the normal threshold relaxes it.
type ThresholdPriority uint8

const (
	ThresholdTightened ThresholdPriority = 1
	ThresholdRelaxed   ThresholdPriority = 2
)

// ThrottleUnlimited means no power limit is requested.
const ThrottleUnlimited = ^uint32(0)

// ThresholdEntry pairs an inclusive SOC upper bound with a current
// threshold. Tables are validated ascending by bound.
type ThresholdEntry struct {
	SOC    int
	MilliA int
}

type ThrottleEntry struct {
	SOC    int
	MilliW uint32
}

// selectThreshold scans ascending and picks the first entry whose bound
// covers soc and whose value is set; otherwise the normal threshold.
func selectThreshold(entries []ThresholdEntry, normalMilliA, soc int) (int, ThresholdPriority) {
	for _, e := range entries {
		if soc <= e.SOC && e.MilliA != 0 {
			return e.MilliA, ThresholdTightened
		}
	}
	return normalMilliA, ThresholdRelaxed
}

// selectThrottle has the same scan shape; no match means unlimited.
func selectThrottle(entries []ThrottleEntry, soc int) uint32 {
	for _, e := range entries {
		if soc <= e.SOC && e.MilliW != 0 {
			return e.MilliW
		}
	}
	return ThrottleUnlimited
}
