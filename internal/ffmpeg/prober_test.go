package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFramerate("30000/1001"), 0.001)
	assert.InDelta(t, 25.0, parseFramerate("25/1"), 0.0001)
	assert.InDelta(t, 24.0, parseFramerate("24"), 0.0001)
	assert.Zero(t, parseFramerate("25/0"))
	assert.Zero(t, parseFramerate("garbage"))
	assert.Zero(t, parseFramerate(""))
}

func TestParseSecondsMS(t *testing.T) {
	assert.Equal(t, int64(5005), parseSecondsMS("5.005"))
	assert.Equal(t, int64(1500), parseSecondsMS("1.5"))
	assert.Equal(t, int64(0), parseSecondsMS(""))
	assert.Equal(t, int64(0), parseSecondsMS("n/a"))
}

func TestProbeResultAccessors(t *testing.T) {
	r := &ProbeResult{
		Format: ProbeFormat{Duration: "3.2"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "30/1"},
			{Index: 1, CodecType: "audio", CodecName: "aac"},
		},
	}

	assert.Equal(t, int64(3200), r.DurationMS())

	video := r.VideoStream()
	if assert.NotNil(t, video) {
		assert.Equal(t, "h264", video.CodecName)
		assert.InDelta(t, 30.0, video.Framerate(), 0.0001)
	}

	audio := r.AudioStream()
	if assert.NotNil(t, audio) {
		assert.Equal(t, "aac", audio.CodecName)
	}

	empty := &ProbeResult{}
	assert.Nil(t, empty.VideoStream())
	assert.Nil(t, empty.AudioStream())
}

func TestFrameratePrefersAvgOverR(t *testing.T) {
	s := &ProbeStream{AvgFrameRate: "24/1", RFrameRate: "30/1"}
	assert.InDelta(t, 24.0, s.Framerate(), 0.0001)

	// Falls back to r_frame_rate when avg is unusable.
	s = &ProbeStream{AvgFrameRate: "0/0", RFrameRate: "30/1"}
	assert.InDelta(t, 30.0, s.Framerate(), 0.0001)
}
