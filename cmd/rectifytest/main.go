// Command rectifytest runs boundary detection and rectification on a single
// image and prints the intermediate results.
package main

import (
	"flag"
	"fmt"
	"os"

	imgio "tablescan/internal/image"
	"tablescan/internal/prep"
	"tablescan/internal/quad"
	"tablescan/internal/rectify"
)

func main() {
	input := flag.String("i", "", "Path to input image")
	output := flag.String("o", "", "Path for the rectified image (optional)")
	epsilon := flag.Float64("eps", quad.DefaultParams().EpsilonRatio, "ApproxPolyDP epsilon as a fraction of the hull perimeter")
	top := flag.Int("n", 5, "Number of candidates to print")
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: rectifytest -i <image> [-o <out.png>] [-eps 0.001] [-n 5]")
		os.Exit(1)
	}

	img, err := imgio.Load(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()
	fmt.Printf("=== %s: %dx%d ===\n", *input, img.Cols(), img.Rows())

	edges := prep.EdgeMap(img, prep.DefaultParams())
	defer edges.Close()

	params := quad.DefaultParams()
	params.EpsilonRatio = *epsilon

	// Step 1: candidates
	candidates := quad.Candidates(edges.Edges, params)
	fmt.Printf("\n=== Candidates (%d) ===\n", len(candidates))
	for i, c := range candidates {
		if i >= *top {
			break
		}
		fmt.Printf("  #%d area=%.0f vertices=%v\n", i, c.Area, c.Polygon)
	}

	// Step 2: chosen corners
	q, err := quad.Detect(edges.Edges, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n=== Corners ===\n")
	fmt.Printf("  %s\n", q)
	fmt.Printf("  edges: top=%.1f right=%.1f bottom=%.1f left=%.1f\n",
		q.Top().Length(), q.Right().Length(), q.Bottom().Length(), q.Left().Length())

	// Step 3: rectify
	res, err := rectify.Rectify(edges.Denoised, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rectification failed: %v\n", err)
		os.Exit(1)
	}
	defer res.Close()

	fmt.Printf("\n=== Output ===\n")
	fmt.Printf("  size: %dx%d\n", res.Width, res.Height)
	m := res.Transform.ToMatrix()
	for _, row := range m {
		fmt.Printf("  [% .6f % .6f % .6f]\n", row[0], row[1], row[2])
	}

	if *output != "" {
		if err := imgio.Save(*output, res.Image); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  written: %s\n", *output)
	}
}
