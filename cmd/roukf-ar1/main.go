// Command roukf-ar1 identifies the coefficient of a scalar AR(1) process:
// a forward operator A(x, θ) = θ·x, an identity observation operator
// H(x, z) = x, and a true θ* = 0.9 generating the measurement stream. It is
// a thin driver wiring a ground-truth plant, a filter and a convergence
// plot together; none of the numerical logic lives here.
package main

import (
	"flag"
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	roukf "github.com/roukf/roukf-go"
	"github.com/roukf/roukf-go/convergence"
	"github.com/roukf/roukf-go/examples/scenario"
	"github.com/roukf/roukf-go/sigma"
)

func main() {
	steps := flag.Int("steps", 10000, "number of assimilation steps")
	trueTheta := flag.Float64("theta", 0.9, "true AR(1) coefficient generating the measurements")
	plotPath := flag.String("plot", "", "if set, write the convergence plot (iteration vs. error) to this PNG path")
	flag.Parse()

	plant, err := scenario.NewLinearDiscrete(
		mat.NewDense(1, 1, []float64{*trueTheta}),
		nil,
		mat.NewDense(1, 1, []float64{1}),
		nil,
	)
	if err != nil {
		log.Fatalf("Failed to build AR(1) plant: %v", err)
	}

	x0 := mat.NewVecDense(1, []float64{1})
	_, measurements, err := plant.Run(x0, *steps)
	if err != nil {
		log.Fatalf("Failed to simulate AR(1) plant: %v", err)
	}

	f, err := roukf.NewFull(1, 1, 1,
		[]float64{10},  // parameterUncertainty -> U = diag(1/10)
		[]float64{1},   // observationUncertainty -> Wi = diag(1/1)
		sigma.CANONIC,
		nil,
	)
	if err != nil {
		log.Fatalf("Failed to construct filter: %v", err)
	}
	f.SetTolerance(1e-6)

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) {
		z[0] = x[0]
	}

	tracker := convergence.NewTracker(f.Tolerance())
	for k := 0; k < *steps; k++ {
		zhat := []float64{measurements.At(k, 0)}
		errNorm, err := f.ExecuteStep(zhat, forward, observe)
		if err != nil {
			log.Fatalf("Step %d failed: %v", k, err)
		}
		tracker.Record(errNorm)
	}

	theta := f.Parameters()
	fmt.Printf("estimated theta = %.6f (true = %.6f), std = %.6g\n", theta[0], *trueTheta, f.ParametersStd()[0])

	if *plotPath != "" {
		p, err := convergence.PlotHistory(tracker)
		if err != nil {
			log.Fatalf("Failed to build convergence plot: %v", err)
		}
		if err := p.Save(6*vg.Inch, 4*vg.Inch, *plotPath); err != nil {
			log.Fatalf("Failed to save convergence plot: %v", err)
		}
	}
}
