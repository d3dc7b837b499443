package vision

import (
	"image"

	"golang.org/x/image/draw"
)

// facePadding widens a detection box on each side before encoding.
const facePadding = 0.1

// CropFace copies the padded face region out of img. It returns nil when the
// box does not overlap the image.
func CropFace(img image.Image, box BoundingBox) image.Image {
	bounds := img.Bounds()
	r := box.Rect().Intersect(bounds)
	if r.Empty() {
		return nil
	}

	padW := int(float32(r.Dx()) * facePadding)
	padH := int(float32(r.Dy()) * facePadding)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}

// ToRGBA returns img as *image.RGBA, copying only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// imageToFloat32CHW resizes img and lays it out as normalized CHW float32:
//
//	pixel = (pixel - mean) / std
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := targetW * targetH
	data := make([]float32, 3*plane)
	for y := 0; y < targetH; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < targetW; x++ {
			px := row[x*4 : x*4+3]
			idx := y*targetW + x
			data[idx] = (float32(px[0]) - mean[0]) / std[0]
			data[plane+idx] = (float32(px[1]) - mean[1]) / std[1]
			data[2*plane+idx] = (float32(px[2]) - mean[2]) / std[2]
		}
	}
	return data
}
