package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/hagop-ai/hagopai/pkg/audio"
	"github.com/hagop-ai/hagopai/pkg/types"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	mono := samplesToBytes([]int16{100, 200, 300})
	stereo := audio.MonoToStereo(mono)
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, 300, 500})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, 400}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_ClampsOverflow(t *testing.T) {
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_SameRate_ReturnsInput(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("expected identical slice for same-rate resample")
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 48 kHz → 16 kHz: ratio 3:1.
	src := make([]int16, 48)
	for i := range src {
		src[i] = int16(i * 100)
	}
	out := audio.ResampleMono16(samplesToBytes(src), 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 16 {
		t.Fatalf("expected 16 samples after 3:1 downsample, got %d", len(got))
	}
	// First output sample maps exactly to source sample 0.
	if got[0] != 0 {
		t.Errorf("first sample = %d, want 0", got[0])
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	src := []int16{0, 300}
	out := audio.ResampleMono16(samplesToBytes(src), 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples after 1:3 upsample, got %d", len(got))
	}
	// Interpolated values should be monotonically non-decreasing here.
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("sample %d: %d < previous %d; interpolation not monotonic", i, got[i], got[i-1])
		}
	}
}

func TestResampleStereo16_Downsample(t *testing.T) {
	// 4 stereo frames at 48 kHz → 2 frames at 24 kHz.
	src := samplesToBytes([]int16{10, 20, 30, 40, 50, 60, 70, 80})
	out := audio.ResampleStereo16(src, 48000, 24000)
	got := bytesToSamples(out)
	if len(got) != 4 {
		t.Fatalf("expected 2 stereo frames (4 samples), got %d samples", len(got))
	}
	if got[0] != 10 || got[1] != 20 {
		t.Errorf("first frame = (%d, %d), want (10, 20)", got[0], got[1])
	}
}

func TestFormatConverter_FastPath(t *testing.T) {
	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := types.AudioFrame{
		Data:       samplesToBytes([]int16{1, 2, 3}),
		SampleRate: 16000,
		Channels:   1,
	}
	out := conv.Convert(frame)
	if &out.Data[0] != &frame.Data[0] {
		t.Error("expected zero-copy fast path for matching format")
	}
}

func TestFormatConverter_ResampleAndDownmix(t *testing.T) {
	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 48 kHz stereo input, 6 frames.
	frame := types.AudioFrame{
		Data:       samplesToBytes([]int16{10, 10, 20, 20, 30, 30, 40, 40, 50, 50, 60, 60}),
		SampleRate: 48000,
		Channels:   2,
	}
	out := conv.Convert(frame)
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
	if out.Channels != 1 {
		t.Errorf("Channels = %d, want 1", out.Channels)
	}
	if len(out.Data) == 0 {
		t.Error("converted frame has no data")
	}
}

func TestFormatConverter_OddByteCount_DropsFrame(t *testing.T) {
	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert(types.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if out.Data != nil {
		t.Error("expected nil data for corrupt frame")
	}
}

func TestConvertStream_ConvertsAndCloses(t *testing.T) {
	in := make(chan types.AudioFrame, 4)
	in <- types.AudioFrame{Data: samplesToBytes([]int16{1, 2, 3, 4, 5, 6}), SampleRate: 48000, Channels: 1}
	close(in)

	out := audio.ConvertStream(in, audio.Format{SampleRate: 16000, Channels: 1})

	var frames []types.AudioFrame
	for f := range out {
		frames = append(frames, f)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", frames[0].SampleRate)
	}
}

func TestDrain_ConsumesUntilClose(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)
	audio.Drain(ch) // must return without blocking
}
