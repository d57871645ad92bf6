package device

import (
	"regexp"
	"strconv"
	"strings"
)

var windowsUSBPort = regexp.MustCompile(`#USB\((\d+)\)`)

// MatchLocation reports whether a device's location string refers to the
// configured target port. It accepts a case-insensitive exact or substring
// match, then falls back to comparing port numbers: the target's ports must
// appear in the device's ports in order, gaps allowed.
//
// Windows location paths such as
// PCIROOT(0)#PCI(1400)#USBROOT(0)#USB(2)#USB(2) contribute only their
// #USB(n) segments. Other strings are split on '.' and '-', ignoring tokens
// starting with "bus" or "addr".
func MatchLocation(deviceLocation, target string) bool {
	target = strings.TrimSpace(target)
	if deviceLocation == "" || target == "" {
		return false
	}

	dl := strings.ToLower(deviceLocation)
	tl := strings.ToLower(target)
	if dl == tl || strings.Contains(dl, tl) {
		return true
	}

	devicePorts := PortNumbers(deviceLocation)
	targetPorts := PortNumbers(target)
	if len(devicePorts) == 0 || len(targetPorts) == 0 {
		return false
	}
	return isSubsequence(targetPorts, devicePorts)
}

// PortNumbers extracts the port chain from a location string.
func PortNumbers(path string) []int {
	var ports []int
	for _, m := range windowsUSBPort.FindAllStringSubmatch(path, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ports = append(ports, n)
		}
	}
	if len(ports) > 0 {
		return ports
	}

	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '.' || r == '-' })
	for _, part := range parts {
		lower := strings.ToLower(strings.TrimSpace(part))
		if strings.HasPrefix(lower, "bus") || strings.HasPrefix(lower, "addr") {
			continue
		}
		if n, err := strconv.Atoi(lower); err == nil {
			ports = append(ports, n)
		}
	}
	return ports
}

// isSubsequence reports whether sub appears in seq in order.
func isSubsequence(sub, seq []int) bool {
	if len(sub) > len(seq) {
		return false
	}
	j := 0
	for i := 0; i < len(seq) && j < len(sub); i++ {
		if seq[i] == sub[j] {
			j++
		}
	}
	return j == len(sub)
}
