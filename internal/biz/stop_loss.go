package biz

// DynamicStopLoss maps position leverage to the stop-loss percentage at
// which the position is force-closed. Higher leverage amplifies the
// price-move-to-equity sensitivity, so the band tightens monotonically as
// leverage rises.
//
// Total over positive leverage; no error conditions.
func DynamicStopLoss(leverage float64) float64 {
	switch {
	case leverage >= 20:
		return -15.0
	case leverage >= 15:
		return -18.0
	case leverage >= 10:
		return -22.0
	case leverage >= 5:
		return -25.0
	default:
		return -30.0
	}
}
