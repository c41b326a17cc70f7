package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect_URLMarkers(t *testing.T) {
	assert.True(t, Detect("https://www.linkedin.com/checkpoint/challenge/abc", ""))
	assert.True(t, Detect("https://www.linkedin.com/authwall?trk=x", ""))
	assert.True(t, Detect("https://example.test/CAPTCHA/verify", ""))
	assert.False(t, Detect("https://www.linkedin.com/feed/", "<html><body><h1>Feed</h1></body></html>"))
}

func TestDetect_DOMSignature(t *testing.T) {
	iframe := `<html><body><iframe src="https://challenge.example/captcha/v2"></iframe></body></html>`
	assert.True(t, Detect("https://www.linkedin.com/feed/", iframe))

	heading := `<html><body><h1>Let's do a quick security check</h1></body></html>`
	assert.True(t, Detect("https://www.linkedin.com/feed/", heading))

	// A job titled with "verification" is not a challenge
	job := `<html><body><h1>Design Verification Engineer</h1></body></html>`
	assert.False(t, Detect("https://www.linkedin.com/jobs/view/1", job))
}

func TestScalePoint_CenterMapsToCenter(t *testing.T) {
	frames := [][2]int{{640, 360}, {1366, 768}, {320, 180}, {1000, 1000}, {1, 1}}
	for _, f := range frames {
		x, y := ScalePoint(float64(f[0])/2, float64(f[1])/2, f[0], f[1], 1366, 768)
		assert.InDelta(t, 683.0, x, 1e-9, "frame %v", f)
		assert.InDelta(t, 384.0, y, 1e-9, "frame %v", f)
	}
}

func TestScalePoint_ScalesAndClamps(t *testing.T) {
	x, y := ScalePoint(100, 50, 683, 384, 1366, 768)
	assert.InDelta(t, 200.0, x, 1e-9)
	assert.InDelta(t, 100.0, y, 1e-9)

	x, y = ScalePoint(-5, 9999, 683, 384, 1366, 768)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 768.0, y)

	// No frame delivered yet: identity
	x, y = ScalePoint(10, 20, 0, 0, 1366, 768)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
}
