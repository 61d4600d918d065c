package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/wippyai/dss-runtime/opendss"
)

// plotVoltageProfile renders per-node voltage magnitudes of the active
// circuit as a line chart. The output format follows the file extension.
func plotVoltageProfile(dss *opendss.DSS, path string) error {
	names, err := dss.Circuit.AllNodeNames()
	if err != nil {
		return err
	}
	mags, err := dss.Circuit.AllBusVmagPu()
	if err != nil {
		return err
	}
	if len(mags) == 0 {
		return fmt.Errorf("no voltages to plot (is a circuit loaded?)")
	}

	xys := make(plotter.XYs, len(mags))
	for i, mag := range mags {
		xys[i].X = float64(i)
		xys[i].Y = mag
	}

	p := plot.New()
	p.Title.Text = "Voltage profile"
	p.X.Label.Text = "node"
	p.Y.Label.Text = "voltage (pu)"
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	p.Add(line, points)
	if len(names) == len(mags) {
		p.NominalX(names...)
	}

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
