package main

import (
	"fmt"
	"strings"

	"github.com/wippyai/dss-runtime/opendss"
)

// voltageReport formats per-node voltage magnitudes of the active circuit.
func voltageReport(dss *opendss.DSS) (string, error) {
	names, err := dss.Circuit.AllNodeNames()
	if err != nil {
		return "", err
	}
	mags, err := dss.Circuit.AllBusVmagPu()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %10s\n", "Node", "pu")
	for i, name := range names {
		if i < len(mags) {
			fmt.Fprintf(&b, "%-24s %10.4f\n", name, mags[i])
		} else {
			fmt.Fprintf(&b, "%-24s %10s\n", name, "-")
		}
	}
	return b.String(), nil
}

// summaryReport formats circuit size, convergence, and power totals.
func summaryReport(dss *opendss.DSS) (string, error) {
	name, err := dss.Circuit.Name()
	if err != nil {
		return "", err
	}
	buses, err := dss.Circuit.NumBuses()
	if err != nil {
		return "", err
	}
	nodes, err := dss.Circuit.NumNodes()
	if err != nil {
		return "", err
	}
	elems, err := dss.Circuit.NumCktElements()
	if err != nil {
		return "", err
	}
	converged, err := dss.Solution.Converged()
	if err != nil {
		return "", err
	}
	iterations, err := dss.Solution.Iterations()
	if err != nil {
		return "", err
	}
	power, err := dss.Circuit.TotalPower()
	if err != nil {
		return "", err
	}
	losses, err := dss.Circuit.Losses()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Circuit:   %s\n", name)
	fmt.Fprintf(&b, "Buses:     %d\n", buses)
	fmt.Fprintf(&b, "Nodes:     %d\n", nodes)
	fmt.Fprintf(&b, "Elements:  %d\n", elems)
	fmt.Fprintf(&b, "Converged: %v (%d iterations)\n", converged, iterations)
	fmt.Fprintf(&b, "Delivered: %.1f kW, %.1f kvar\n", -real(power), -imag(power))
	fmt.Fprintf(&b, "Losses:    %.1f W\n", real(losses))
	return b.String(), nil
}
