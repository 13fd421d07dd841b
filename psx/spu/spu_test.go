package spu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	samples []int16
}

func (c *captureSink) PushSamples(s []int16) {
	c.samples = append(c.samples, s...)
}

func TestKeyOnEntersAttack(t *testing.T) {
	s := New(nil)
	s.WriteIO(0x6, 16, 0x0010) // voice 0 start address = 0x10 * 8 bytes
	s.applyKeyOn(1, 0)

	require.True(t, s.voices[0].enabled)
	require.Equal(t, phaseAttack, s.voices[0].adsr.phase)
	require.Equal(t, uint16(0), s.voices[0].adsr.level)
	require.Equal(t, uint32(0x80), s.voices[0].currentAddr)
}

func TestKeyOffForcesRelease(t *testing.T) {
	s := New(nil)
	s.applyKeyOn(1, 0)
	s.voices[0].adsr.phase = phaseSustain
	s.applyKeyOff(1, 0)
	require.Equal(t, phaseRelease, s.voices[0].adsr.phase)
}

// TestEnvelopeStaysInRange exercises the ADSR invariant from spec.md
// section 8: the envelope level is in [0, 32767] at all times, and the
// phase path Attack -> Decay -> Sustain -> Off is respected when the
// voice is never keyed off.
func TestEnvelopeStaysInRange(t *testing.T) {
	s := New(nil)
	s.applyKeyOn(1, 0)
	v := &s.voices[0]
	v.adsr.attackRate.rate = 40
	v.adsr.decayRate = 20
	v.adsr.sustainLevel = 0
	v.adsr.sustainRate = adsrMode{rate: 20, expo: true, decr: true}

	sawDecay, sawSustain := false, false
	for i := 0; i < 200000 && v.adsr.phase != phaseOff; i++ {
		v.advanceEnvelope()
		require.GreaterOrEqual(t, int32(v.adsr.level), int32(0))
		require.LessOrEqual(t, int32(v.adsr.level), int32(32767))
		if v.adsr.phase == phaseDecay {
			sawDecay = true
		}
		if v.adsr.phase == phaseSustain {
			sawSustain = true
		}
	}
	require.True(t, sawDecay)
	require.True(t, sawSustain)
	require.Equal(t, phaseOff, v.adsr.phase)
}

func TestADPCMDecodeProducesSamples(t *testing.T) {
	s := New(nil)
	ram := s.RAM()
	ram[0] = 0x00 // shift 0, filter 0
	ram[1] = 0x00 // no loop flags
	for i := 0; i < 14; i++ {
		ram[2+i] = 0x11 // every nibble == 1
	}
	s.WriteIO(0x6, 16, 0) // voice 0 start address 0
	s.applyKeyOn(1, 0)

	v := &s.voices[0]
	v.decodeBlock()
	require.Equal(t, int16(4096), v.adpcm.decoded[0])
	require.Equal(t, int16(4096), v.adpcm.decoded[27])
	require.Equal(t, uint32(16), v.currentAddr)
}

// TestADPCMFilterOnePredictsHalfHistory feeds one full-scale-ish nibble
// followed by zeros through filter 1, whose predictor is
// s + h[0] + (-h[0] >> 1): each zero sample must decay to half the
// previous output.
func TestADPCMFilterOnePredictsHalfHistory(t *testing.T) {
	s := New(nil)
	ram := s.RAM()
	ram[0] = 0x10 // shift 0, filter 1
	ram[1] = 0x00
	ram[2] = 0x01 // sample 0: nibble 1; sample 1 onward: nibble 0
	s.applyKeyOn(1, 0)

	v := &s.voices[0]
	v.decodeBlock()
	require.Equal(t, int16(4096), v.adpcm.decoded[0])
	require.Equal(t, int16(2048), v.adpcm.decoded[1])
	require.Equal(t, int16(1024), v.adpcm.decoded[2])
	require.Equal(t, int16(512), v.adpcm.decoded[3])
}

// TestADPCMFilterTwoUsesBothHistorySamples pins the second-order
// predictor s + 2h[0] + ((-3h[0])>>1) - h[1] + (h[1]>>1) against a
// hand-computed trace.
func TestADPCMFilterTwoUsesBothHistorySamples(t *testing.T) {
	s := New(nil)
	ram := s.RAM()
	ram[0] = 0x20 // shift 0, filter 2
	ram[1] = 0x00
	ram[2] = 0x01
	s.applyKeyOn(1, 0)

	v := &s.voices[0]
	v.decodeBlock()
	require.Equal(t, int16(4096), v.adpcm.decoded[0]) // h0=0, h1=0: passthrough
	require.Equal(t, int16(2048), v.adpcm.decoded[1]) // 2*4096 + (-12288>>1)
	require.Equal(t, int16(-1024), v.adpcm.decoded[2]) // 4096 - 3072 - 4096 + 2048
}

func TestNoiseLFSRProducesFullScale(t *testing.T) {
	s := New(nil)
	s.spucnt = (3 << 8) | (15 << 10) // step 3, shift 15: the LFSR advances every 4 samples

	seen := map[int16]bool{}
	for i := 0; i < 64; i++ {
		seen[s.advanceNoise()] = true
	}
	require.Contains(t, seen, int16(0x7FFF))
	require.Contains(t, seen, int16(-0x8000))
}

func TestNoiseDisabledWithZeroClockStep(t *testing.T) {
	s := New(nil)
	for i := 0; i < 16; i++ {
		require.Equal(t, int16(0), s.advanceNoise())
	}
}

// TestFinalBlockDisablesVoiceAfterPlayout pins the loop-end-without-repeat
// interpretation this project uses: the remaining samples of the flagged
// block still play, then the voice shuts off.
func TestFinalBlockDisablesVoiceAfterPlayout(t *testing.T) {
	s := New(nil)
	ram := s.RAM()
	ram[0] = 0x00 // shift 0, filter 0
	ram[1] = 0x01 // loop end, no repeat
	for i := 0; i < 14; i++ {
		ram[2+i] = 0x11
	}
	s.applyKeyOn(1, 0)
	v := &s.voices[0]
	v.sampleRate = 0x1000 // native rate: one decoded sample per output sample

	for i := 0; i < 28; i++ {
		require.True(t, v.enabled, "all 28 samples of the final block must play")
		v.nextSample()
	}
	v.nextSample()
	require.False(t, v.enabled)
	require.Equal(t, phaseOff, v.adsr.phase)
}

func TestMixingWritesToSink(t *testing.T) {
	s := New(nil)
	sink := &captureSink{}
	s.SetSink(sink)
	s.mainVolL, s.mainVolR = 0x3FFF, 0x3FFF

	s.Step(cpuClockHz / SampleRateHz * 10) // ~10 samples worth of cycles
	require.NotEmpty(t, sink.samples)
	require.Equal(t, 0, len(sink.samples)%2)
}

func TestCDAudioMixesIntoOutput(t *testing.T) {
	s := New(nil)
	s.mainVolL, s.mainVolR = 0x3FFF, 0x3FFF
	s.cdVolL, s.cdVolR = 0x7FFF, 0x7FFF
	s.PushCDAudio([]int16{1000, -1000})

	l, r := s.mixSample()
	require.Greater(t, l, int16(0))
	require.Less(t, r, int16(0))

	l, r = s.mixSample()
	require.Equal(t, int16(0), l, "the CD buffer is drained one frame per sample")
	require.Equal(t, int16(0), r)
}

func TestDMATransferRoundTrips(t *testing.T) {
	s := New(nil)
	s.transferAddr = 0
	s.DMAWrite(0x1234_5678)
	s.transferAddr = 0
	got := s.DMARead()
	require.Equal(t, uint32(0x1234_5678), got)
}
