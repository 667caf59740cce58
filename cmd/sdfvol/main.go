package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/soypat/sdfvol"
	"github.com/soypat/sdfvol/config"
	"github.com/soypat/sdfvol/distvol"
	"github.com/soypat/sdfvol/mesh"
	"github.com/soypat/sdfvol/mesh/meshgen"
	"github.com/soypat/sdfvol/mesh/meshio"
	"github.com/soypat/sdfvol/render"
	"github.com/soypat/sdfvol/signdist"
	"github.com/soypat/sdfvol/volio"
	"gonum.org/v1/gonum/spatial/r3"
)

func main() {
	// Parse command line arguments
	surface := flag.String("surface", "", "Surface file (.stl, .obj, .ply)")
	demo := flag.String("demo", "", "Use a generated surface instead: sphere, shells, hollow, box or tube")
	template := flag.String("template", "", "NIfTI volume whose grid the output uses")
	output := flag.String("out", "distance.nii.gz", "Output signed distance NIfTI file")
	roiOutput := flag.String("roi-out", "", "Optional output ROI NIfTI file")
	configPath := flag.String("config", "", "YAML configuration file, flags override its values")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	spacing := flag.Float64("spacing", 0, "Voxel size in mm when no template is given")
	pad := flag.Float64("pad", -1, "Margin in mm around the surface when no template is given")
	fill := flag.Float64("fill", 0, "Value of voxels beyond the approximate limit")
	exact := flag.Float64("exact", 0, "Exact evaluation limit in mm")
	approx := flag.Float64("approx", 0, "Approximate propagation limit in mm")
	neighborhood := flag.Int("neighborhood", 0, "Propagation neighborhood radius in voxels")
	winding := flag.String("winding", "", "Inside test: EVEN_ODD, WINDING, NEGATIVE or NORMALS")
	roiComputed := flag.Bool("roi-computed", false, "Mark every computed voxel in the ROI, not only inside voxels")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: all available)")
	verbose := flag.Bool("v", false, "Log debug information")
	saveMesh := flag.String("save-mesh", "", "Write the surface used as binary STL")
	isoOutput := flag.String("iso-out", "", "Write the zero level set of the signed distance as binary STL")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		return
	}
	if (*surface == "") == (*demo == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -surface or -demo is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	// Flags given explicitly take precedence over the configuration.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "spacing":
			cfg.Grid.Spacing = *spacing
		case "pad":
			cfg.Grid.Padding = *pad
		case "fill":
			cfg.Distance.FillValue = float32(*fill)
		case "exact":
			cfg.Distance.ExactLimit = *exact
		case "approx":
			cfg.Distance.ApproxLimit = *approx
		case "neighborhood":
			cfg.Distance.ApproxNeighborhood = *neighborhood
		case "winding":
			cfg.Distance.Winding = *winding
		case "roi-computed":
			cfg.Distance.ROIComputed = *roiComputed
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "v":
			cfg.Output.Verbose = *verbose
		}
	})

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	sdfvol.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	params, err := cfg.Params()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	m, err := loadSurface(*surface, *demo)
	if err != nil {
		log.Fatalf("Failed to load surface: %v", err)
	}
	if *saveMesh != "" {
		if err := meshio.SaveSTL(*saveMesh, m); err != nil {
			log.Fatalf("Failed to save mesh: %v", err)
		}
	}

	var space sdfvol.Space
	if *template != "" {
		space, err = volio.OpenSpace(*template)
	} else {
		space, err = sdfvol.SpaceFromBounds(m.Bounds(), cfg.Grid.Spacing, cfg.Grid.Padding)
	}
	if err != nil {
		log.Fatalf("Failed to set up output grid: %v", err)
	}

	out, err := sdfvol.NewVolume(space)
	if err != nil {
		log.Fatalf("Failed to allocate output volume: %v", err)
	}
	var roi *sdfvol.Volume
	if *roiOutput != "" {
		roi, err = sdfvol.NewVolume(space)
		if err != nil {
			log.Fatalf("Failed to allocate ROI volume: %v", err)
		}
	}

	fmt.Printf("Surface: %d vertices, %d triangles, area %.4g mm^2\n", len(m.Vertices), len(m.Triangles), m.Area())
	fmt.Printf("Grid: %v voxels, spacing %.4g mm\n", space.Dims, space.Spacing())
	fmt.Printf("Winding: %v, exact %.4g mm, approximate %.4g mm\n", params.Winding, params.ExactLimit, params.ApproxLimit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	lastReport := time.Now()
	params.Progress = func(frac float64) {
		if frac == 1 || time.Since(lastReport) > time.Second {
			lastReport = time.Now()
			fmt.Fprintf(os.Stderr, "\rprogress %5.1f%%", 100*frac)
			if frac == 1 {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
	res, err := distvol.Create(ctx, m, out, roi, params)
	if errors.Is(err, context.Canceled) {
		log.Fatal("Interrupted")
	} else if err != nil {
		log.Fatalf("Distance volume generation failed: %v", err)
	}

	description := fmt.Sprintf("sdfvol %v exact=%g approx=%g", params.Winding, params.ExactLimit, params.ApproxLimit)
	if err := volio.SaveNIfTI(*output, out, description); err != nil {
		log.Fatalf("Failed to write %s: %v", *output, err)
	}
	if roi != nil {
		if err := volio.SaveNIfTI(*roiOutput, roi, "sdfvol ROI"); err != nil {
			log.Fatalf("Failed to write %s: %v", *roiOutput, err)
		}
	}
	fmt.Printf("\nCompleted in %.2f seconds: %v\n", res.Elapsed.Seconds(), res)
	fmt.Printf("Distance volume: %v\n", out.Summarize())
	fmt.Printf("Output saved to: %s\n", *output)

	if *isoOutput != "" {
		if err := saveIsosurface(*isoOutput, m, params.Winding, max(space.Dims[0], space.Dims[1], space.Dims[2])); err != nil {
			log.Fatalf("Failed to write isosurface: %v", err)
		}
		fmt.Printf("Isosurface saved to: %s\n", *isoOutput)
	}
}

// saveIsosurface remeshes m through its signed distance so sign errors show
// up as stray patches.
func saveIsosurface(path string, m *mesh.Mesh, w signdist.Winding, cells int) error {
	oc, err := render.NewOctreeRenderer(signdist.New(m, nil, w), cells)
	if err != nil {
		return err
	}
	iso, err := render.ToMesh(oc)
	if err != nil {
		return err
	}
	return meshio.SaveSTL(path, iso)
}

func loadSurface(path, demo string) (*mesh.Mesh, error) {
	if path != "" {
		return meshio.Load(path)
	}
	var origin r3.Vec
	switch demo {
	case "sphere":
		return meshgen.Icosphere(origin, 30, 4)
	case "shells":
		return meshgen.Shells(origin, []float64{20, 35}, 4)
	case "hollow":
		return meshgen.HollowSphere(origin, 20, 35, 4)
	case "box":
		return meshgen.Box(origin, r3.Vec{X: 60, Y: 40, Z: 30})
	case "tube":
		s, err := meshgen.Tube(60, 25, 15)
		if err != nil {
			return nil, err
		}
		return meshgen.FromSDF(s, 64)
	}
	return nil, fmt.Errorf("unknown demo surface %q", demo)
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nWinding policies: %v %v %v %v\n\n",
			os.Args[0], signdist.EvenOdd, signdist.NonZero, signdist.Negative, signdist.Normals)
		flag.PrintDefaults()
	}
}
