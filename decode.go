package pik

import (
	"image"

	"github.com/deepteams/pik/internal/alpha"
	"github.com/deepteams/pik/internal/bitio"
	"github.com/deepteams/pik/internal/container"
	"github.com/deepteams/pik/internal/ctan"
	"github.com/deepteams/pik/internal/dcpred"
	"github.com/deepteams/pik/internal/entropy"
	"github.com/deepteams/pik/internal/gaborish"
	"github.com/deepteams/pik/internal/noise"
	"github.com/deepteams/pik/internal/opsin"
	"github.com/deepteams/pik/internal/pikerr"
	"github.com/deepteams/pik/internal/pikimage"
	"github.com/deepteams/pik/internal/pool"
	"github.com/deepteams/pik/internal/quant"
)

// DecoderOptions controls decoding. The zero value is valid.
type DecoderOptions struct {
	// ApplyNoise overrides whether decoder-side grain synthesis
	// (internal/noise's AddNoise) runs, when not DenoiseAuto. Independent
	// of Denoise.
	ApplyNoise Denoise
	// Denoise overrides whether the quantizer-aware smoothing pass
	// (container.FlagDenoise, internal/gaborish's Denoise) runs, when not
	// DenoiseAuto (the bitstream's own flag).
	Denoise Denoise
}

// Decode parses a PIK bitstream produced by Encode and reconstructs the
// image it describes.
func Decode(data []byte, opts DecoderOptions) (image.Image, error) {
	hr := bitio.NewReader(data)
	hdr, err := container.DecodeHeader(hr)
	if err != nil {
		return nil, err
	}
	if hdr.Tag == container.TagBrunsli {
		return nil, pikerr.New(pikerr.KindUnsupported, "pik.Decode", "brunsli-tagged bitstream not supported")
	}
	pos := hr.Pos() / 8

	xsize, ysize := hdr.XSize, hdr.YSize
	blocksW, blocksH := pikimage.BlockXSize(xsize), pikimage.BlockXSize(ysize)

	var decodedAlpha *alpha.Plane
	if hdr.Flags.Has(container.FlagAlpha) {
		if pos+4 > len(data) {
			return nil, pikerr.New(pikerr.KindMalformed, "pik.Decode", "truncated alpha length")
		}
		lr := bitio.NewReader(data[pos:])
		n, err := lr.GetBits(32)
		if err != nil {
			return nil, err
		}
		pos += 4
		if pos+int(n) > len(data) {
			return nil, pikerr.New(pikerr.KindMalformed, "pik.Decode", "truncated alpha payload")
		}
		pl, err := alpha.Decode(data[pos:pos+int(n)], xsize, ysize)
		if err != nil {
			return nil, err
		}
		decodedAlpha = &pl
		pos += int(n)
	}

	if pos > len(data) {
		return nil, pikerr.New(pikerr.KindMalformed, "pik.Decode", "truncated bitstream")
	}
	noiseParams, consumed, err := decodeNoiseParams(data[pos:])
	if err != nil {
		return nil, err
	}
	pos += consumed

	ctanMap, consumed, err := decodeCtanMap(data[pos:])
	if err != nil {
		return nil, err
	}
	pos += consumed

	rawDC, field, consumed, err := decodeQuantField(data[pos:])
	if err != nil {
		return nil, err
	}
	pos += consumed

	t, consumed, err := decodeCoefficients(data[pos:], blocksW, blocksH)
	if err != nil {
		return nil, err
	}
	pos += consumed
	t.ctanMap = ctanMap

	q := quant.New(blocksW, blocksH, hdrQuantTemplate(hdr))
	q.SetQuantField(rawDC, field)

	yDC := dcpred.ExpandY(t.dcResidual[1])
	xDC := dcpred.ExpandXB(t.dcResidual[0], yDC)
	bDC := dcpred.ExpandXB(t.dcResidual[2], yDC)
	planeDC := [3]*pikimage.ImageI{xDC, yDC, bDC}
	for p := 0; p < 3; p++ {
		for by := 0; by < blocksH; by++ {
			for bx := 0; bx < blocksW; bx++ {
				idx := by*blocksW + bx
				t.rawAC[p][idx*64] = planeDC[p].At(bx, by)
			}
		}
	}

	xCoeff := make([]float32, blocksW*blocksH*64)
	yCoeff := make([]float32, blocksW*blocksH*64)
	bCoeff := make([]float32, blocksW*blocksH*64)
	planeCoeffs := [3][]float32{xCoeff, yCoeff, bCoeff}
	for p := 0; p < 3; p++ {
		raw := t.rawAC[p]
		for by := 0; by < blocksH; by++ {
			for bx := 0; bx < blocksW; bx++ {
				idx := by*blocksW + bx
				q.DequantizeBlock(raw[idx*64:idx*64+64], planeCoeffs[p][idx*64:idx*64+64], bx, by)
			}
		}
	}
	ctan.UnapplyMap(t.ctanMap, yCoeff, bCoeff, xCoeff, blocksW, blocksH)

	xybArg := pikimage.NewImage3(xsize, ysize)
	inverseDCTPlane(xCoeff, blocksW, blocksH, xsize, ysize, xybArg.Plane(pikimage.PlaneX))
	inverseDCTPlane(yCoeff, blocksW, blocksH, xsize, ysize, xybArg.Plane(pikimage.PlaneY))
	inverseDCTPlane(bCoeff, blocksW, blocksH, xsize, ysize, xybArg.Plane(pikimage.PlaneB))

	if hdr.Flags.Has(container.FlagGaborishTransform) {
		gaborish.Inverse(xybArg)
	}

	enableDenoise := hdr.Flags.Has(container.FlagDenoise)
	if opts.Denoise == DenoiseOn {
		enableDenoise = true
	} else if opts.Denoise == DenoiseOff {
		enableDenoise = false
	}
	if enableDenoise {
		gaborish.Denoise(xybArg, gaborish.DenoiseStrength(q.RawDC, q.Scale))
	}

	linearRGB := opsin.InverseDynamicsImage(xybArg)

	applyNoise := noiseParams.HaveNoise()
	if opts.ApplyNoise == DenoiseOff {
		applyNoise = false
	}
	if applyNoise {
		seed := uint64(xsize)*0x9E3779B97F4A7C15 + uint64(ysize)*0xC2B2AE3D27D4EB4F
		noise.AddNoise(linearRGB, noiseParams, seed)
	}

	pix := opsin.ToSRGBBytes(linearRGB, 4)
	if decodedAlpha != nil {
		for i := 0; i < xsize*ysize; i++ {
			pix[i*4+3] = decodedAlpha.Pix[i]
		}
	}

	img := &image.NRGBA{
		Pix:    pix,
		Stride: xsize * 4,
		Rect:   image.Rect(0, 0, xsize, ysize),
	}
	return img, nil
}

func hdrQuantTemplate(h container.Header) QuantTemplate {
	if h.QuantTemplate == 1 {
		return QuantHQ
	}
	return QuantDefault
}

func decodeNoiseParams(buf []byte) (noise.Params, int, error) {
	r := bitio.NewReader(buf)
	have, err := r.GetBits(1)
	if err != nil {
		return noise.Params{}, 0, err
	}
	if have == 0 {
		r.JumpToByteBoundary()
		return noise.Params{}, r.Pos() / 8, nil
	}
	var vals [3]float64
	for i := range vals {
		v, err := r.GetSignedBits(16)
		if err != nil {
			return noise.Params{}, 0, err
		}
		vals[i] = float64(v) / 1000
	}
	r.JumpToByteBoundary()
	return noise.Params{Alpha: vals[0], Gamma: vals[1], Beta: vals[2]}, r.Pos() / 8, nil
}

func decodeCtanMap(buf []byte) (*ctan.Map, int, error) {
	r := bitio.NewReader(buf)
	yToBDC, err := r.GetSignedBits(8)
	if err != nil {
		return nil, 0, err
	}
	yToXDC, err := r.GetSignedBits(8)
	if err != nil {
		return nil, 0, err
	}
	tw64, err := r.GetBits(16)
	if err != nil {
		return nil, 0, err
	}
	th64, err := r.GetBits(16)
	if err != nil {
		return nil, 0, err
	}
	tw, th := int(tw64), int(th64)
	m := &ctan.Map{
		YToB:   pikimage.NewImageI(tw, th),
		YToX:   pikimage.NewImageI(tw, th),
		YToBDC: int(yToBDC),
		YToXDC: int(yToXDC),
	}
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			kb, err := r.GetBits(8)
			if err != nil {
				return nil, 0, err
			}
			kx, err := r.GetBits(8)
			if err != nil {
				return nil, 0, err
			}
			m.YToB.Set(tx, ty, int32(kb))
			m.YToX.Set(tx, ty, int32(kx))
		}
	}
	r.JumpToByteBoundary()
	return m, r.Pos() / 8, nil
}

func decodeQuantField(buf []byte) (int, *pikimage.ImageI, int, error) {
	r := bitio.NewReader(buf)
	rawDC, err := r.GetBits(16)
	if err != nil {
		return 0, nil, 0, err
	}
	bw64, err := r.GetBits(16)
	if err != nil {
		return 0, nil, 0, err
	}
	bh64, err := r.GetBits(16)
	if err != nil {
		return 0, nil, 0, err
	}
	bw, bh := int(bw64), int(bh64)
	field := pikimage.NewImageI(bw, bh)
	for y := 0; y < bh; y++ {
		row := field.Row(y)
		for x := 0; x < bw; x++ {
			v, err := r.GetBits(12)
			if err != nil {
				return 0, nil, 0, err
			}
			row[x] = int32(v)
		}
	}
	r.JumpToByteBoundary()
	return int(rawDC), field, r.Pos() / 8, nil
}

func decodeCoefficients(buf []byte, blocksW, blocksH int) (*trial, int, error) {
	const numCtx = 8
	r := bitio.NewReader(buf)

	var contextMap [numCtx]int
	for i := 0; i < numCtx; i++ {
		v, err := r.GetBits(8)
		if err != nil {
			return nil, 0, err
		}
		contextMap[i] = int(v)
	}
	numClusters, err := r.GetBits(8)
	if err != nil {
		return nil, 0, err
	}
	clusterLen := make([]int, numClusters)
	clusterDecodedLen := make([]int, numClusters)
	clusterRaw := make([]bool, numClusters)
	tableLen := make([]int, numClusters)
	for i := 0; i < int(numClusters); i++ {
		l, err := r.GetBits(32)
		if err != nil {
			return nil, 0, err
		}
		d, err := r.GetBits(32)
		if err != nil {
			return nil, 0, err
		}
		rb, err := r.GetBits(1)
		if err != nil {
			return nil, 0, err
		}
		tl, err := r.GetBits(32)
		if err != nil {
			return nil, 0, err
		}
		clusterLen[i], clusterDecodedLen[i], clusterRaw[i], tableLen[i] = int(l), int(d), rb == 1, int(tl)
	}
	r.JumpToByteBoundary()

	var contextLen [numCtx]int
	for i := 0; i < numCtx; i++ {
		v, err := r.GetBits(32)
		if err != nil {
			return nil, 0, err
		}
		contextLen[i] = int(v)
	}
	r.JumpToByteBoundary()
	pos := r.Pos() / 8

	var enc entropy.Encoded
	enc.ContextMap = contextMap[:]
	enc.ContextLen = contextLen[:]
	enc.Clusters = make([][]byte, numClusters)
	enc.Raw = clusterRaw
	enc.ClusterLen = clusterDecodedLen
	enc.Tables = make([][]byte, numClusters)
	for i := 0; i < int(numClusters); i++ {
		if pos+clusterLen[i] > len(buf) {
			return nil, 0, pikerr.New(pikerr.KindMalformed, "pik.decodeCoefficients", "truncated cluster stream")
		}
		enc.Clusters[i] = buf[pos : pos+clusterLen[i]]
		pos += clusterLen[i]
	}
	for i := 0; i < int(numClusters); i++ {
		if tableLen[i] == 0 {
			continue
		}
		if pos+tableLen[i] > len(buf) {
			return nil, 0, pikerr.New(pikerr.KindMalformed, "pik.decodeCoefficients", "truncated histogram table")
		}
		enc.Tables[i] = buf[pos : pos+tableLen[i]]
		pos += tableLen[i]
	}

	if pos+4 > len(buf) {
		return nil, 0, pikerr.New(pikerr.KindMalformed, "pik.decodeCoefficients", "truncated extra length")
	}
	er := bitio.NewReader(buf[pos:])
	extraLen, err := er.GetBits(32)
	if err != nil {
		return nil, 0, err
	}
	pos += 4
	if pos+int(extraLen) > len(buf) {
		return nil, 0, pikerr.New(pikerr.KindMalformed, "pik.decodeCoefficients", "truncated extra payload")
	}
	enc.Extra = buf[pos : pos+int(extraLen)]
	pos += int(extraLen)

	dec, err := entropy.NewDecoder(enc)
	if err != nil {
		return nil, 0, err
	}

	numBlocks := blocksW * blocksH
	rawAC := make([][]int32, 3)
	for p := 0; p < 3; p++ {
		raw := pool.GetInt32(numBlocks * 64)
		for i := 0; i < numBlocks; i++ {
			if err := dec.DecodeBlock(raw[i*64 : i*64+64]); err != nil {
				return nil, 0, err
			}
		}
		rawAC[p] = raw
	}

	if pos > len(buf) {
		return nil, 0, pikerr.New(pikerr.KindMalformed, "pik.decodeCoefficients", "truncated dc residual")
	}
	dr := bitio.NewReader(buf[pos:])
	var dcResidual [3]*pikimage.ImageI
	for p := 0; p < 3; p++ {
		dc := pikimage.NewImageI(blocksW, blocksH)
		for y := 0; y < blocksH; y++ {
			row := dc.Row(y)
			for x := 0; x < blocksW; x++ {
				v, err := dr.GetSignedBits(16)
				if err != nil {
					return nil, 0, err
				}
				row[x] = int32(v)
			}
		}
		dcResidual[p] = dc
	}
	dr.JumpToByteBoundary()
	pos += dr.Pos() / 8

	t := &trial{
		blocksW: blocksW, blocksH: blocksH,
		rawAC:      rawAC,
		dcResidual: dcResidual,
	}
	return t, pos, nil
}
