package pik

import (
	"image"
	"image/color"

	"github.com/deepteams/pik/internal/alpha"
	"github.com/deepteams/pik/internal/bitio"
	"github.com/deepteams/pik/internal/container"
	"github.com/deepteams/pik/internal/control"
	"github.com/deepteams/pik/internal/ctan"
	"github.com/deepteams/pik/internal/dcpred"
	"github.com/deepteams/pik/internal/entropy"
	"github.com/deepteams/pik/internal/gaborish"
	"github.com/deepteams/pik/internal/noise"
	"github.com/deepteams/pik/internal/opsin"
	"github.com/deepteams/pik/internal/pikcfg"
	"github.com/deepteams/pik/internal/pikerr"
	"github.com/deepteams/pik/internal/pikimage"
	"github.com/deepteams/pik/internal/pool"
	"github.com/deepteams/pik/internal/quant"
	"github.com/deepteams/pik/internal/transform"
)

// Encode compresses img into a PIK bitstream according to opts.
func Encode(img image.Image, opts EncoderOptions) ([]byte, error) {
	p := opts
	p.Normalize()

	bounds := img.Bounds()
	xsize, ysize := bounds.Dx(), bounds.Dy()
	if xsize <= 0 || ysize <= 0 {
		return nil, pikerr.New(pikerr.KindInvalidInput, "pik.Encode", "zero-area image")
	}
	if xsize > MaxDimension || ysize > MaxDimension {
		return nil, pikerr.New(pikerr.KindInvalidInput, "pik.Encode", "dimensions exceed maximum")
	}
	if p.MaxNumPixels > 0 && xsize*ysize > p.MaxNumPixels {
		return nil, pikerr.New(pikerr.KindInvalidInput, "pik.Encode", "pixel count exceeds MaxNumPixels")
	}

	pix, alphaPlane, hasAlpha := extractPixels(img, bounds)

	flags := container.Flags(0)
	useGaborish := true
	if useGaborish {
		flags |= container.FlagGaborishTransform
	}
	if hasAlpha {
		flags |= container.FlagAlpha
	}

	linearRGB := opsin.FromSRGBBytes(pix, xsize, ysize, 3)
	xybOrig := opsin.DynamicsImage(linearRGB)
	xybArg := xybOrig.Clone()
	if useGaborish {
		gaborish.Forward(xybArg)
	}

	noiseParams := noise.EstimateParams(xybOrig)

	if p.Denoise == pikcfg.DenoiseOn {
		flags |= container.FlagDenoise
	}

	blocksW, blocksH := pikimage.BlockXSize(xsize), pikimage.BlockXSize(ysize)
	q := quant.New(blocksW, blocksH, p.QuantTemplate)

	adaptiveMap := control.AdaptiveQuantizationMap(xybOrig.Plane(pikimage.PlaneY), 8)

	pl := pool.New(0)
	reconstruct := func(qz *quant.Quantizer) *pikimage.Image3 {
		out := reconstructTrial(pl, xybArg, qz, useGaborish)
		if flags.Has(container.FlagDenoise) {
			gaborish.Denoise(out, gaborish.DenoiseStrength(qz.RawDC, qz.Scale))
		}
		return out
	}

	maxIters := p.MaxButteraugliIters
	if p.ReallySlowMode {
		maxIters = p.MaxButteraugliItersReallySlow
	}

	targetSize := p.TargetSize
	if targetSize == 0 && p.TargetBitrate > 0 {
		targetSize = int(p.TargetBitrate * float64(xsize*ysize) / 8)
	}

	var result control.Result
	switch {
	case targetSize > 0 && p.TargetSizeSearchFastMode:
		result = control.TargetSizeFast(xybOrig, adaptiveMap, maxIters, reconstruct, q, targetSize, sizeEstimator(pl, xybArg, useGaborish))
	case targetSize > 0:
		result = control.CompressToTarget(xybOrig, adaptiveMap, maxIters, reconstruct, q, targetSize, sizeEstimator(pl, xybArg, useGaborish))
	case p.FastMode:
		result = control.FindBestQuantization(xybOrig, adaptiveMap, p.ButteraugliDistance, maxIters, reconstruct, q)
	default:
		result = control.FindBestQuantizationHQ(xybOrig, adaptiveMap, p.ButteraugliDistance, reconstruct, q, control.DefaultHQParams(p.ButteraugliDistance))
	}

	p.Logger.Debug("control loop finished", "iterations", result.Iterations, "distance", result.Distance)

	final := computeFinalCoefficients(pl, xybArg, q, useGaborish)

	w := bitio.NewWriter()
	hdr := container.Header{
		Tag:           container.TagDefault,
		XSize:         xsize,
		YSize:         ysize,
		QuantTemplate: uint8(p.QuantTemplate),
		Flags:         flags,
	}
	if err := hdr.Encode(w); err != nil {
		return nil, err
	}
	headerBytes := len(w.Bytes())
	out := w.Bytes()

	if hasAlpha {
		alphaPayload, err := alpha.Encode(alpha.Plane{Width: xsize, Height: ysize, Pix: alphaPlane})
		if err != nil {
			return nil, err
		}
		lw := bitio.NewWriter()
		lw.PutBits(uint64(len(alphaPayload)), 32)
		out = append(out, lw.Finish()...)
		out = append(out, alphaPayload...)
	}

	noiseBytes := encodeNoiseParams(noiseParams)
	out = append(out, noiseBytes...)

	ctanBytes := encodeCtanMap(final.ctanMap)
	out = append(out, ctanBytes...)

	quantBytes := encodeQuantField(result.RawDC, result.QuantField)
	out = append(out, quantBytes...)

	coeffBytes, err := encodeCoefficients(final)
	if err != nil {
		return nil, err
	}
	out = append(out, coeffBytes...)

	if p.Stats != nil {
		p.Stats.Iterations = result.Iterations
		p.Stats.FinalDistance = result.Distance
		p.Stats.HeaderBytes = headerBytes
		p.Stats.NoiseParamBytes = len(noiseBytes)
		p.Stats.CtanBytes = len(ctanBytes)
		p.Stats.QuantBytes = len(quantBytes)
		p.Stats.CoefficientBytes = len(coeffBytes)
	}

	return out, nil
}

// extractPixels reads img into packed 8-bit RGB rows plus an optional
// alpha plane, reporting whether any pixel's alpha differs from fully
// opaque.
func extractPixels(img image.Image, bounds image.Rectangle) (rgb []byte, alphaPlane []byte, hasAlpha bool) {
	xsize, ysize := bounds.Dx(), bounds.Dy()
	rgb = make([]byte, xsize*ysize*3)
	alphaPlane = make([]byte, xsize*ysize)
	for y := 0; y < ysize; y++ {
		for x := 0; x < xsize; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			off := (y*xsize + x) * 3
			rgb[off] = c.R
			rgb[off+1] = c.G
			rgb[off+2] = c.B
			alphaPlane[y*xsize+x] = c.A
			if c.A != 255 {
				hasAlpha = true
			}
		}
	}
	if !hasAlpha {
		return rgb, nil, false
	}
	return rgb, alphaPlane, true
}

// trial bundles the working state one reconstruction pass needs, reused
// between the control-loop callback and the final commit pass so the two
// code paths cannot drift apart.
type trial struct {
	blocksW, blocksH int
	yCoeff, xCoeff, bCoeff []float32
	ctanMap                *ctan.Map
	rawAC                  [][]int32 // per plane: X, Y, B raw quantized coefficients, block-major
	dcResidual             [3]*pikimage.ImageI
}

// forwardDCT runs the block DCT over every plane of im, returning
// block-major coefficient buffers in X,Y,B plane order.
func forwardDCT(pl *pool.Pool, im *pikimage.Image3) (x, y, b []float32, blocksW, blocksH int) {
	xsize, ysize := im.XSize(), im.YSize()
	blocksW, blocksH = pikimage.BlockXSize(xsize), pikimage.BlockXSize(ysize)
	planes := [3]*pikimage.Image{im.Plane(0), im.Plane(1), im.Plane(2)}
	out := [3][]float32{
		make([]float32, blocksW*blocksH*64),
		make([]float32, blocksW*blocksH*64),
		make([]float32, blocksW*blocksH*64),
	}
	pl.RunIndexed(3, func(p int) {
		forwardDCTPlane(planes[p], xsize, ysize, blocksW, blocksH, out[p])
	})
	return out[0], out[1], out[2], blocksW, blocksH
}

func forwardDCTPlane(pl *pikimage.Image, xsize, ysize, blocksW, blocksH int, out []float32) {
	var block [64]float32
	for by := 0; by < blocksH; by++ {
		for bx := 0; bx < blocksW; bx++ {
			for yy := 0; yy < 8; yy++ {
				py := by*8 + yy
				var row []float32
				if py < ysize {
					row = pl.Row(py)
				}
				for xx := 0; xx < 8; xx++ {
					px := bx*8 + xx
					if row != nil && px < xsize {
						block[yy*8+xx] = row[px]
					} else {
						block[yy*8+xx] = 0
					}
				}
			}
			idx := by*blocksW + bx
			transform.Forward8x8(block[:], out[idx*64:idx*64+64])
		}
	}
}

func inverseDCTPlane(coeffs []float32, blocksW, blocksH, xsize, ysize int, out *pikimage.Image) {
	var block [64]float32
	for by := 0; by < blocksH; by++ {
		for bx := 0; bx < blocksW; bx++ {
			idx := by*blocksW + bx
			transform.Inverse8x8(coeffs[idx*64:idx*64+64], block[:])
			for yy := 0; yy < 8; yy++ {
				py := by*8 + yy
				if py >= ysize {
					continue
				}
				row := out.Row(py)
				for xx := 0; xx < 8; xx++ {
					px := bx*8 + xx
					if px >= xsize {
						continue
					}
					row[px] = block[yy*8+xx]
				}
			}
		}
	}
}

// runTrial performs the shared forward pipeline: DCT, ctan removal,
// quantize/dequantize round trip through qz.
func runTrial(pl *pool.Pool, xybArg *pikimage.Image3, qz *quant.Quantizer) *trial {
	xCoeff, yCoeff, bCoeff, blocksW, blocksH := forwardDCT(pl, xybArg)

	yTiles := ctan.GroupByTile(yCoeff, blocksW, blocksH)
	bTiles := ctan.GroupByTile(bCoeff, blocksW, blocksH)
	xTiles := ctan.GroupByTile(xCoeff, blocksW, blocksH)
	tilesW := pikimage.TileXSize(blocksW)
	tilesH := pikimage.TileXSize(blocksH)
	m := ctan.Compute(yTiles, bTiles, xTiles, tilesW, tilesH)
	ctan.ApplyMap(m, yCoeff, bCoeff, xCoeff, blocksW, blocksH)

	rawAC := make([][]int32, 3)
	planeCoeffs := [3][]float32{xCoeff, yCoeff, bCoeff}
	for p := 0; p < 3; p++ {
		raw := pool.GetInt32(blocksW * blocksH * 64)
		for by := 0; by < blocksH; by++ {
			for bx := 0; bx < blocksW; bx++ {
				idx := by*blocksW + bx
				qz.QuantizeBlock(planeCoeffs[p][idx*64:idx*64+64], raw[idx*64:idx*64+64], bx, by)
				qz.DequantizeBlock(raw[idx*64:idx*64+64], planeCoeffs[p][idx*64:idx*64+64], bx, by)
			}
		}
		rawAC[p] = raw
	}
	ctan.UnapplyMap(m, yCoeff, bCoeff, xCoeff, blocksW, blocksH)

	return &trial{
		blocksW: blocksW, blocksH: blocksH,
		xCoeff: xCoeff, yCoeff: yCoeff, bCoeff: bCoeff,
		ctanMap: m, rawAC: rawAC,
	}
}

func reconstructTrial(pl *pool.Pool, xybArg *pikimage.Image3, qz *quant.Quantizer, useGaborish bool) *pikimage.Image3 {
	t := runTrial(pl, xybArg, qz)
	out := pikimage.NewImage3(xybArg.XSize(), xybArg.YSize())
	planeCoeffs := [3][]float32{t.xCoeff, t.yCoeff, t.bCoeff}
	for p := 0; p < 3; p++ {
		inverseDCTPlane(planeCoeffs[p], t.blocksW, t.blocksH, xybArg.XSize(), xybArg.YSize(), out.Plane(p))
	}
	if useGaborish {
		gaborish.Inverse(out)
	}
	return out
}

func sizeEstimator(pl *pool.Pool, xybArg *pikimage.Image3, useGaborish bool) func(qz *quant.Quantizer) int {
	return func(qz *quant.Quantizer) int {
		t := runTrial(pl, xybArg, qz)
		enc, err := encodeCoefficients(t)
		if err != nil {
			return 1 << 30
		}
		return len(enc)
	}
}

// computeFinalCoefficients re-runs the trial pipeline once more with the
// committed quant field, additionally computing the DC residual planes
// dcpred needs (spec §4.5): the trial loop itself only needs AC round
// trips, DC prediction is only worth computing on the field the encoder
// actually commits to.
func computeFinalCoefficients(pl *pool.Pool, xybArg *pikimage.Image3, qz *quant.Quantizer, useGaborish bool) *trial {
	t := runTrial(pl, xybArg, qz)
	for p := 0; p < 3; p++ {
		dc := pikimage.NewImageI(t.blocksW, t.blocksH)
		for by := 0; by < t.blocksH; by++ {
			for bx := 0; bx < t.blocksW; bx++ {
				idx := by*t.blocksW + bx
				dc.Set(bx, by, t.rawAC[p][idx*64])
			}
		}
		t.dcResidual[p] = dc
	}
	yResidual := dcpred.ShrinkY(t.dcResidual[1])
	xResidual := dcpred.ShrinkXB(t.dcResidual[0], t.dcResidual[1])
	bResidual := dcpred.ShrinkXB(t.dcResidual[2], t.dcResidual[1])
	t.dcResidual[0], t.dcResidual[1], t.dcResidual[2] = xResidual, yResidual, bResidual
	return t
}

func encodeNoiseParams(p noise.Params) []byte {
	w := bitio.NewWriter()
	if !p.HaveNoise() {
		w.PutBits(0, 1)
		return w.Finish()
	}
	w.PutBits(1, 1)
	for _, v := range [3]float64{p.Alpha, p.Gamma, p.Beta} {
		w.PutSignedBits(int64(v*1000), 16)
	}
	return w.Finish()
}

func encodeCtanMap(m *ctan.Map) []byte {
	w := bitio.NewWriter()
	w.PutSignedBits(int64(m.YToBDC), 8)
	w.PutSignedBits(int64(m.YToXDC), 8)
	tw, th := m.YToB.XSize(), m.YToB.YSize()
	w.PutBits(uint64(tw), 16)
	w.PutBits(uint64(th), 16)
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			w.PutBits(uint64(m.YToB.At(tx, ty)), 8)
			w.PutBits(uint64(m.YToX.At(tx, ty)), 8)
		}
	}
	return w.Finish()
}

func encodeQuantField(rawDC int, field *pikimage.ImageI) []byte {
	w := bitio.NewWriter()
	w.PutBits(uint64(rawDC), 16)
	bw, bh := field.XSize(), field.YSize()
	w.PutBits(uint64(bw), 16)
	w.PutBits(uint64(bh), 16)
	for y := 0; y < bh; y++ {
		row := field.Row(y)
		for x := 0; x < bw; x++ {
			w.PutBits(uint64(row[x]), 12)
		}
	}
	return w.Finish()
}

func encodeCoefficients(t *trial) ([]byte, error) {
	buf := entropy.NewBuffer()
	for p := 0; p < 3; p++ {
		raw := t.rawAC[p]
		for i := 0; i < t.blocksW*t.blocksH; i++ {
			buf.EncodeBlock(raw[i*64 : i*64+64])
		}
	}
	enc := buf.Finish()

	w := bitio.NewWriter()
	for _, cl := range enc.ContextMap {
		w.PutBits(uint64(cl), 8)
	}
	w.PutBits(uint64(len(enc.Clusters)), 8)
	for i := range enc.Clusters {
		w.PutBits(uint64(len(enc.Clusters[i])), 32)
		w.PutBits(uint64(enc.ClusterLen[i]), 32)
		w.PutBits(boolToBit(enc.Raw[i]), 1)
		w.PutBits(uint64(len(enc.Tables[i])), 32)
	}
	w.JumpToByteBoundary()
	for _, n := range enc.ContextLen {
		w.PutBits(uint64(n), 32)
	}
	w.JumpToByteBoundary()
	out := w.Finish()
	for _, c := range enc.Clusters {
		out = append(out, c...)
	}
	for _, tbl := range enc.Tables {
		out = append(out, tbl...)
	}
	ew := bitio.NewWriter()
	ew.PutBits(uint64(len(enc.Extra)), 32)
	out = append(out, ew.Finish()...)
	out = append(out, enc.Extra...)

	dcw := bitio.NewWriter()
	for p := 0; p < 3; p++ {
		dc := t.dcResidual[p]
		bw, bh := dc.XSize(), dc.YSize()
		for y := 0; y < bh; y++ {
			row := dc.Row(y)
			for x := 0; x < bw; x++ {
				dcw.PutSignedBits(int64(row[x]), 16)
			}
		}
	}
	out = append(out, dcw.Finish()...)
	return out, nil
}

func boolToBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
