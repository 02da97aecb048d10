package engine

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/region-lens/internal/detection"
	"github.com/ironsheep/region-lens/internal/imaging"
)

// ContourDetector finds rectangular blobs on the letterboxed canvas with
// gradient edges and connected-component contours. It needs no model file
// and is meant for diagrams, product shots and tests.
//
// Boxes are emitted in normalized center form, in scan order. The score is
// the contour's rectangularity.
type ContourDetector struct {
	// EdgeThreshold is the grayscale step that marks an edge. Zero means 30.
	EdgeThreshold float64
	// MinArea is the smallest bounding box, in canvas pixels, worth
	// reporting. Zero means 64.
	MinArea int
	// MaxDetections caps the output after suppression. Zero means 100.
	MaxDetections int
}

const (
	defaultEdgeThreshold = 30
	defaultMinArea       = 64
	defaultMaxDetections = 100
	minContourPixels     = 10
	outlineBand          = 2
)

// Name implements detection.Namer.
func (d *ContourDetector) Name() string { return "contour" }

// Detect implements detection.Detector.
func (d *ContourDetector) Detect(ctx context.Context, input *imaging.Tensor, hp detection.Hyperparameters) (detection.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return detection.RawOutput{}, err
	}
	canvas, err := imaging.Decode(input)
	if err != nil {
		return detection.RawOutput{}, err
	}
	width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	content := contentBounds(canvas)
	if content.Empty() {
		return detection.RawOutput{}, nil
	}

	edges := detectEdges(canvas, content, d.edgeThreshold())
	if err := ctx.Err(); err != nil {
		return detection.RawOutput{}, err
	}
	contours := findContours(edges, width, height)

	var cands []candidate
	for _, contour := range contours {
		c, ok := measure(contour)
		if !ok || c.area() < d.minArea() {
			continue
		}
		if c.score <= hp.Confidence {
			continue
		}
		cands = append(cands, c)
	}
	cands = suppress(cands, hp.IoU, d.maxDetections())

	out := detection.RawOutput{
		Boxes:  make([][4]float32, len(cands)),
		Scores: make([]float32, len(cands)),
	}
	w, h := float64(width), float64(height)
	for i, c := range cands {
		cw := float64(c.maxX - c.minX + 1)
		ch := float64(c.maxY - c.minY + 1)
		out.Boxes[i] = [4]float32{
			float32((float64(c.minX) + cw/2) / w),
			float32((float64(c.minY) + ch/2) / h),
			float32(cw / w),
			float32(ch / h),
		}
		out.Scores[i] = float32(c.score)
	}
	return out, nil
}

func (d *ContourDetector) edgeThreshold() float64 {
	if d.EdgeThreshold > 0 {
		return d.EdgeThreshold
	}
	return defaultEdgeThreshold
}

func (d *ContourDetector) minArea() int {
	if d.MinArea > 0 {
		return d.MinArea
	}
	return defaultMinArea
}

func (d *ContourDetector) maxDetections() int {
	if d.MaxDetections > 0 {
		return d.MaxDetections
	}
	return defaultMaxDetections
}

// contentBounds returns the smallest rectangle holding every row and column
// that is not entirely letterbox fill.
func contentBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y) == imaging.LetterboxFill {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX || maxY < minY {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// detectEdges marks pixels whose grayscale value differs from the right or
// lower neighbor by more than threshold. Only pairs fully inside content are
// compared, so the border between content and padding is never an edge.
func detectEdges(img *image.NRGBA, content image.Rectangle, threshold float64) [][]bool {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	edges := make([][]bool, height)
	for y := range edges {
		edges[y] = make([]bool, width)
	}

	for y := content.Min.Y; y < content.Max.Y-1; y++ {
		for x := content.Min.X; x < content.Max.X-1; x++ {
			c := grayValue(img, x, y)
			dx := math.Abs(c - grayValue(img, x+1, y))
			dy := math.Abs(c - grayValue(img, x, y+1))
			if dx > threshold || dy > threshold {
				edges[y-b.Min.Y][x-b.Min.X] = true
			}
		}
	}
	return edges
}

type point struct{ x, y int }

// findContours groups 8-connected edge pixels. Components smaller than
// minContourPixels are noise.
func findContours(edges [][]bool, width, height int) [][]point {
	visited := make([][]bool, height)
	for y := range visited {
		visited[y] = make([]bool, width)
	}

	var contours [][]point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if edges[y][x] && !visited[y][x] {
				contour := floodFill(edges, visited, x, y, width, height)
				if len(contour) >= minContourPixels {
					contours = append(contours, contour)
				}
			}
		}
	}
	return contours
}

// floodFill collects one component with an explicit stack.
func floodFill(edges, visited [][]bool, startX, startY, width, height int) []point {
	var contour []point
	stack := []point{{startX, startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.x < 0 || p.x >= width || p.y < 0 || p.y >= height {
			continue
		}
		if visited[p.y][p.x] || !edges[p.y][p.x] {
			continue
		}
		visited[p.y][p.x] = true
		contour = append(contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx != 0 || dy != 0 {
					stack = append(stack, point{p.x + dx, p.y + dy})
				}
			}
		}
	}
	return contour
}

// grayValue uses ITU-R BT.601 luma weights.
func grayValue(img *image.NRGBA, x, y int) float64 {
	c := img.NRGBAAt(x, y)
	return float64(c.R)*0.299 + float64(c.G)*0.587 + float64(c.B)*0.114
}

type candidate struct {
	minX, minY, maxX, maxY int
	score                  float64
}

func (c candidate) area() int {
	return (c.maxX - c.minX + 1) * (c.maxY - c.minY + 1)
}

// measure returns the bounding box of contour and its rectangularity in
// [0, 1]: the share of contour pixels lying on the box outline times the
// share of the outline that has contour pixels. Blurred edges a few pixels
// thick still score close to 1.
func measure(contour []point) (candidate, bool) {
	if len(contour) < 4 {
		return candidate{}, false
	}
	c := candidate{minX: contour[0].x, minY: contour[0].y, maxX: contour[0].x, maxY: contour[0].y}
	for _, p := range contour[1:] {
		c.minX, c.maxX = min(c.minX, p.x), max(c.maxX, p.x)
		c.minY, c.maxY = min(c.minY, p.y), max(c.maxY, p.y)
	}
	w, h := c.maxX-c.minX+1, c.maxY-c.minY+1
	if w < 2 || h < 2 {
		return candidate{}, false
	}

	top, bottom := make([]bool, w), make([]bool, w)
	left, right := make([]bool, h), make([]bool, h)
	onOutline := 0
	for _, p := range contour {
		x, y := p.x-c.minX, p.y-c.minY
		hit := false
		if y <= outlineBand {
			top[x], hit = true, true
		}
		if h-1-y <= outlineBand {
			bottom[x], hit = true, true
		}
		if x <= outlineBand {
			left[y], hit = true, true
		}
		if w-1-x <= outlineBand {
			right[y], hit = true, true
		}
		if hit {
			onOutline++
		}
	}

	covered := 0
	for _, side := range [][]bool{top, bottom, left, right} {
		for _, v := range side {
			if v {
				covered++
			}
		}
	}
	precision := float64(onOutline) / float64(len(contour))
	coverage := float64(covered) / float64(2*(w+h))
	c.score = math.Max(0, math.Min(1, precision*coverage))
	return c, true
}

// suppress applies greedy non-maximum suppression: candidates are visited by
// descending score and dropped when their IoU with a kept one exceeds iou.
// Survivors keep their original order.
func suppress(cands []candidate, iou float64, limit int) []candidate {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cands[order[a]].score > cands[order[b]].score
	})

	keep := make([]bool, len(cands))
	var kept []int
	for _, i := range order {
		if len(kept) == limit {
			break
		}
		overlaps := false
		for _, k := range kept {
			if overlap(cands[i], cands[k]) > iou {
				overlaps = true
				break
			}
		}
		if !overlaps {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	out := make([]candidate, 0, len(kept))
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func overlap(a, b candidate) float64 {
	ix := min(a.maxX, b.maxX) - max(a.minX, b.minX) + 1
	iy := min(a.maxY, b.maxY) - max(a.minY, b.minY) + 1
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := float64(ix * iy)
	return inter / (float64(a.area()+b.area()) - inter)
}
