package utils

import "strconv"

const byteUnitStep = 1024

var byteUnits = [...]string{"B", "KiB", "MiB", "GiB", "TiB"}

// FormatByteSize renders a byte count with binary units, one decimal above a KiB.
// Negative counts render as zero.
func FormatByteSize(size int) string {
	if size < byteUnitStep {
		return strconv.Itoa(max(size, 0)) + " " + byteUnits[0]
	}
	value := float64(size)
	unitIndex := 0
	for value >= byteUnitStep && unitIndex < len(byteUnits)-1 {
		value /= byteUnitStep
		unitIndex++
	}
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + byteUnits[unitIndex]
}
