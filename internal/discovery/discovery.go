// Package discovery maps human readable device labels to serial port paths
// using the USB enumerator.
package discovery

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultLabel is the label the sensor board reports as its USB product.
const DefaultLabel = "Environmental sensor"

// ErrDeviceNotFound is returned when no port matches a label.
var ErrDeviceNotFound = errors.New("device not found")

// Rule pins a label to a USB identity. Empty fields match anything, but at
// least one of VID, PID or SerialNumber must be set.
type Rule struct {
	Label        string `json:"label"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

func (r Rule) matches(p *enumerator.PortDetails) bool {
	if !p.IsUSB || (r.VID == "" && r.PID == "" && r.SerialNumber == "") {
		return false
	}
	if r.VID != "" && !strings.EqualFold(r.VID, p.VID) {
		return false
	}
	if r.PID != "" && !strings.EqualFold(r.PID, p.PID) {
		return false
	}
	if r.SerialNumber != "" && r.SerialNumber != p.SerialNumber {
		return false
	}
	return true
}

// Lister returns the ports currently attached.
type Lister func() ([]*enumerator.PortDetails, error)

// SystemLister enumerates the host's serial ports.
func SystemLister() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Resolve returns the port path for label. Rules for the label are tried
// first; otherwise the first USB port (by name) whose product string contains
// the label, case-insensitively, is used.
func Resolve(label string, rules []Rule, list Lister) (string, error) {
	if list == nil {
		list = SystemLister
	}
	ports, err := list()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	for _, rule := range rules {
		if rule.Label != label {
			continue
		}
		for _, p := range ports {
			if rule.matches(p) {
				return p.Name, nil
			}
		}
	}

	needle := strings.ToLower(label)
	for _, p := range ports {
		if p.IsUSB && needle != "" && strings.Contains(strings.ToLower(p.Product), needle) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %q (%d ports seen)", ErrDeviceNotFound, label, len(ports))
}

// Report resolves every label named in rules plus DefaultLabel and returns
// the ones found.
func Report(rules []Rule, list Lister) (map[string]string, error) {
	if list == nil {
		list = SystemLister
	}
	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	cached := func() ([]*enumerator.PortDetails, error) { return ports, nil }

	labels := map[string]bool{DefaultLabel: true}
	for _, r := range rules {
		labels[r.Label] = true
	}
	found := make(map[string]string)
	for label := range labels {
		if path, err := Resolve(label, rules, cached); err == nil {
			found[label] = path
		}
	}
	return found, nil
}
