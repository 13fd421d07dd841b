// Package spu implements the SPU mixing core: 24 ADPCM voices with ADSR
// envelopes, a noise generator, a 512 KB SPU RAM with a DMA-fed transfer
// FIFO, and the stereo mixer. Grounded on the teacher's APU package shape
// (jeebie/audio/apu.go: a register bag plus a per-channel struct array,
// ticked by cycles and drained into a sample buffer) generalized from the
// Game Boy's four simple channels to the PSX's 24 ADPCM voices.
package spu

import (
	"log/slog"

	"github.com/nullstep/psxgo/psx/bit"
)

const (
	VoiceCount   = 24
	RAMSize      = 512 * 1024
	RAMMask      = RAMSize - 1
	SampleRateHz = 44100
	cpuClockHz   = 33_868_800
)

// Sink is the host audio collaborator: a consumer of interleaved stereo
// i16 sample pairs. Step calls PushSamples once per call that produces at
// least one pair, passing every pair of that call; the sink does its own
// locking.
type Sink interface {
	PushSamples(samples []int16)
}

// transferMode selects what SPUCNT's bits 4-5 say 16-bit RAM-transfer
// writes should do with the FIFO.
type transferMode int

const (
	transferStop transferMode = iota
	transferManual
	transferDMAWrite
	transferDMARead
)

// SPU owns voice state, SPU RAM, the global mixer registers, and the
// reverb placeholder.
type SPU struct {
	voices [VoiceCount]voice

	ram []byte

	mainVolL, mainVolR     int16
	reverbVolL, reverbVolR int16
	cdVolL, cdVolR         int16
	extVolL, extVolR       int16

	keyOn, keyOff     uint32
	pitchModEnable    uint32
	noiseEnable       uint32
	reverbEnable      uint32
	voiceStatus       uint32 // endpoint bitmask read at 0x1D9C/0x1D9E; no voice event sets it, so it reads as zero

	spucnt  uint16
	spustat uint16

	transferAddr   uint16 // current SPU RAM transfer pointer, in 8-byte units
	irqAddr        uint16
	transferFIFO   []uint16
	mode           transferMode

	noiseLFSR  uint16
	noiseTimer int

	cdBuf []int16 // decoded CD-DA frames awaiting the cd_left/cd_right mix inputs

	sampleAcc float64 // fractional sample budget carried across Step calls

	sink Sink
	log  *slog.Logger
}

// New returns an SPU with zeroed RAM and every voice disabled.
func New(log *slog.Logger) *SPU {
	if log == nil {
		log = slog.Default()
	}
	s := &SPU{
		ram:       make([]byte, RAMSize),
		noiseLFSR: 1,
		log:       log,
	}
	for i := range s.voices {
		s.voices[i].id = i
		s.voices[i].spu = s
	}
	return s
}

// SetSink attaches the host audio collaborator that receives mixed stereo
// samples. A nil sink silently drops output, which test code relies on.
func (s *SPU) SetSink(sink Sink) { s.sink = sink }

// RAM exposes the backing store so System can wire the DMA transfer FIFO
// and, in tests, preload ADPCM sample data directly.
func (s *SPU) RAM() []byte { return s.ram }

func (s *SPU) ReadIO(offset uint32, width int) uint32 {
	switch {
	case offset < 0x180:
		return s.readVoice(offset)
	default:
		return uint32(s.readGlobal(offset))
	}
}

func (s *SPU) WriteIO(offset uint32, width int, value uint32) {
	switch {
	case offset < 0x180:
		s.writeVoice(offset, uint16(value))
	default:
		s.writeGlobal(offset, uint16(value))
	}
}

func (s *SPU) readVoice(offset uint32) uint32 {
	v := &s.voices[offset/0x10]
	switch offset % 0x10 {
	case 0x0:
		return uint32(uint16(v.volumeL))
	case 0x2:
		return uint32(uint16(v.volumeR))
	case 0x4:
		return uint32(v.sampleRate)
	case 0x6:
		return uint32(v.startAddr)
	case 0x8:
		return uint32(v.adsrLo())
	case 0xA:
		return uint32(v.adsrHi())
	case 0xC:
		return uint32(v.adsr.level)
	case 0xE:
		return uint32(v.repeatAddr)
	default:
		return 0
	}
}

func (s *SPU) writeVoice(offset uint32, value uint16) {
	v := &s.voices[offset/0x10]
	switch offset % 0x10 {
	case 0x0:
		v.volumeL = int16(value)
	case 0x2:
		v.volumeR = int16(value)
	case 0x4:
		v.sampleRate = value
	case 0x6:
		v.startAddr = value
	case 0x8:
		v.setAdsrLo(value)
	case 0xA:
		v.setAdsrHi(value)
	case 0xC:
		v.adsr.level = value
	case 0xE:
		v.repeatAddr = value
	}
}

const (
	regMainVolL    = 0x1D80 - 0x1C00
	regMainVolR    = 0x1D82 - 0x1C00
	regReverbVolL  = 0x1D84 - 0x1C00
	regReverbVolR  = 0x1D86 - 0x1C00
	regKeyOnLo     = 0x1D88 - 0x1C00
	regKeyOnHi     = 0x1D8A - 0x1C00
	regKeyOffLo    = 0x1D8C - 0x1C00
	regKeyOffHi    = 0x1D8E - 0x1C00
	regFMLo        = 0x1D90 - 0x1C00
	regFMHi        = 0x1D92 - 0x1C00
	regNoiseLo     = 0x1D94 - 0x1C00
	regNoiseHi     = 0x1D96 - 0x1C00
	regReverbLo    = 0x1D98 - 0x1C00
	regReverbHi    = 0x1D9A - 0x1C00
	regEndpointLo  = 0x1D9C - 0x1C00
	regEndpointHi  = 0x1D9E - 0x1C00
	regReverbAddr  = 0x1DA2 - 0x1C00
	regIRQAddr     = 0x1DA4 - 0x1C00
	regTransAddr   = 0x1DA6 - 0x1C00
	regTransFIFO   = 0x1DA8 - 0x1C00
	regSPUCNT      = 0x1DAA - 0x1C00
	regTransCtrl   = 0x1DAC - 0x1C00
	regSPUSTAT     = 0x1DAE - 0x1C00
	regCDVolL      = 0x1DB0 - 0x1C00
	regCDVolR      = 0x1DB2 - 0x1C00
	regExtVolL     = 0x1DB4 - 0x1C00
	regExtVolR     = 0x1DB6 - 0x1C00
)

func (s *SPU) readGlobal(offset uint32) uint16 {
	switch offset {
	case regMainVolL:
		return uint16(s.mainVolL)
	case regMainVolR:
		return uint16(s.mainVolR)
	case regReverbVolL:
		return uint16(s.reverbVolL)
	case regReverbVolR:
		return uint16(s.reverbVolR)
	case regKeyOnLo:
		return bit.Low16(s.keyOn)
	case regKeyOnHi:
		return bit.High16(s.keyOn)
	case regKeyOffLo:
		return bit.Low16(s.keyOff)
	case regKeyOffHi:
		return bit.High16(s.keyOff)
	case regEndpointLo:
		return bit.Low16(s.voiceStatus)
	case regEndpointHi:
		return bit.High16(s.voiceStatus)
	case regNoiseLo:
		return bit.Low16(s.noiseEnable)
	case regNoiseHi:
		return bit.High16(s.noiseEnable)
	case regReverbLo:
		return bit.Low16(s.reverbEnable)
	case regReverbHi:
		return bit.High16(s.reverbEnable)
	case regTransAddr:
		return s.transferAddr
	case regIRQAddr:
		return s.irqAddr
	case regSPUCNT:
		return s.spucnt
	case regSPUSTAT:
		return s.spustat
	case regCDVolL:
		return uint16(s.cdVolL)
	case regCDVolR:
		return uint16(s.cdVolR)
	case regExtVolL:
		return uint16(s.extVolL)
	case regExtVolR:
		return uint16(s.extVolR)
	default:
		return 0
	}
}

func (s *SPU) writeGlobal(offset uint32, value uint16) {
	switch offset {
	case regMainVolL:
		s.mainVolL = int16(value)
	case regMainVolR:
		s.mainVolR = int16(value)
	case regReverbVolL:
		s.reverbVolL = int16(value)
	case regReverbVolR:
		s.reverbVolR = int16(value)
	case regKeyOnLo:
		s.keyOn = bit.Combine16(bit.High16(s.keyOn), value)
		s.applyKeyOn(value, 0)
	case regKeyOnHi:
		s.keyOn = bit.Combine16(value, bit.Low16(s.keyOn))
		s.applyKeyOn(value, 16)
	case regKeyOffLo:
		s.keyOff = bit.Combine16(bit.High16(s.keyOff), value)
		s.applyKeyOff(value, 0)
	case regKeyOffHi:
		s.keyOff = bit.Combine16(value, bit.Low16(s.keyOff))
		s.applyKeyOff(value, 16)
	case regNoiseLo:
		s.noiseEnable = bit.Combine16(bit.High16(s.noiseEnable), value)
	case regNoiseHi:
		s.noiseEnable = bit.Combine16(value, bit.Low16(s.noiseEnable))
	case regReverbLo:
		s.reverbEnable = bit.Combine16(bit.High16(s.reverbEnable), value)
	case regReverbHi:
		s.reverbEnable = bit.Combine16(value, bit.Low16(s.reverbEnable))
	case regTransAddr:
		s.transferAddr = value
	case regTransFIFO:
		s.transferFIFO = append(s.transferFIFO, value)
		s.drainTransferFIFO()
	case regIRQAddr:
		s.irqAddr = value
	case regSPUCNT:
		s.spucnt = value
		s.mode = transferMode((value >> 4) & 3)
	case regCDVolL:
		s.cdVolL = int16(value)
	case regCDVolR:
		s.cdVolR = int16(value)
	case regExtVolL:
		s.extVolL = int16(value)
	case regExtVolR:
		s.extVolR = int16(value)
	}
}

// applyKeyOn key-ons every voice whose bit is set in this half of the
// 24-bit key-on bitmask, base is 0 for the low word and 16 for the high
// byte, per spec.md section 4.9's voice lifecycle.
func (s *SPU) applyKeyOn(half uint16, base int) {
	for i := 0; i < 16 && base+i < VoiceCount; i++ {
		if half&(1<<uint(i)) != 0 {
			s.voices[base+i].keyOn()
		}
	}
}

func (s *SPU) applyKeyOff(half uint16, base int) {
	for i := 0; i < 16 && base+i < VoiceCount; i++ {
		if half&(1<<uint(i)) != 0 {
			s.voices[base+i].keyOff()
		}
	}
}

// drainTransferFIFO writes manual/DMA-staged words to SPU RAM at the
// transfer address, post-incrementing and wrapping modulo 512 KB per
// spec.md section 4.9.
func (s *SPU) drainTransferFIFO() {
	for len(s.transferFIFO) > 0 {
		w := s.transferFIFO[0]
		s.transferFIFO = s.transferFIFO[1:]
		addr := (uint32(s.transferAddr) * 8) & RAMMask
		s.ram[addr] = byte(w)
		s.ram[(addr+1)&RAMMask] = byte(w >> 8)
		s.transferAddr++
	}
}

// DMARead satisfies dma.Endpoint for channel 4 (device-to-RAM): pulls one
// 32-bit word (two 16-bit halves) from SPU RAM at the transfer address.
func (s *SPU) DMARead() uint32 {
	lo := s.readTransferWord()
	hi := s.readTransferWord()
	return bit.Combine16(hi, lo)
}

func (s *SPU) readTransferWord() uint16 {
	addr := (uint32(s.transferAddr) * 8) & RAMMask
	v := uint16(s.ram[addr]) | uint16(s.ram[(addr+1)&RAMMask])<<8
	s.transferAddr++
	return v
}

// DMAWrite satisfies dma.Endpoint for channel 4 (RAM-to-device): stages
// both halves of the word into the transfer FIFO, exactly as a manual
// write to the FIFO register would.
func (s *SPU) DMAWrite(word uint32) {
	s.transferFIFO = append(s.transferFIFO, bit.Low16(word), bit.High16(word))
	s.drainTransferFIFO()
}

// PushCDAudio queues decoded CD-DA stereo frames from the CD-ROM's audio
// player; mixSample drains one L/R pair per output sample, scaled by the
// CD volume registers.
func (s *SPU) PushCDAudio(samples []int16) {
	s.cdBuf = append(s.cdBuf, samples...)
	const maxBuffered = SampleRateHz * 4 // ~2s of stereo frames
	if len(s.cdBuf) > maxBuffered {
		s.cdBuf = s.cdBuf[len(s.cdBuf)-maxBuffered:]
	}
}

// Step advances the mixer by cpuCycles CPU cycles, producing
// floor(cycles*44100/33868800) stereo sample pairs (carrying the
// fractional remainder forward) and forwarding them to the sink.
func (s *SPU) Step(cpuCycles int) {
	s.sampleAcc += float64(cpuCycles) * SampleRateHz / cpuClockHz
	n := int(s.sampleAcc)
	s.sampleAcc -= float64(n)
	if n == 0 {
		return
	}

	out := make([]int16, 0, n*2)
	for i := 0; i < n; i++ {
		l, r := s.mixSample()
		out = append(out, l, r)
	}
	if s.sink != nil {
		s.sink.PushSamples(out)
	}
}

func (s *SPU) mixSample() (int16, int16) {
	noise := s.advanceNoise()

	var accL, accR int32
	for i := range s.voices {
		v := &s.voices[i]
		if !v.enabled {
			continue
		}
		raw := v.nextSample()
		if s.noiseEnable&(1<<uint(i)) != 0 {
			raw = noise
		}
		env := int32(v.adsr.level)
		scaled := (int32(raw) * env) >> 15
		accL += (scaled * int32(v.volumeL)) >> 15
		accR += (scaled * int32(v.volumeR)) >> 15
	}
	if len(s.cdBuf) >= 2 {
		accL += (int32(s.cdBuf[0]) * int32(s.cdVolL)) >> 15
		accR += (int32(s.cdBuf[1]) * int32(s.cdVolR)) >> 15
		s.cdBuf = s.cdBuf[2:]
	}

	l := (accL * int32(s.mainVolL)) >> 15
	r := (accR * int32(s.mainVolR)) >> 15
	return bit.ClampI16(l), bit.ClampI16(r)
}

// advanceNoise clocks the noise generator by one output sample. SPUCNT
// bits 8-9 select the clock step (0 disables noise entirely) and bits
// 10-13 the shift; the LFSR advances once every
// (0x8000|0x10000|0x20000) >> shift samples, per spec.md section 4.9.
func (s *SPU) advanceNoise() int16 {
	step := int((s.spucnt >> 8) & 0x3)
	if step == 0 {
		return 0
	}
	shift := uint((s.spucnt >> 10) & 0xF)
	period := (0x8000 << uint(step-1)) >> shift
	if period < 1 {
		period = 1
	}
	s.noiseTimer++
	if s.noiseTimer >= period {
		s.noiseTimer = 0
		s.stepNoiseLFSR()
	}
	if s.noiseLFSR&1 != 0 {
		return 0x7FFF
	}
	return -0x8000
}

// stepNoiseLFSR advances the Galois LFSR one step (taps 15, 12, 11, 10).
func (s *SPU) stepNoiseLFSR() {
	bitOut := ((s.noiseLFSR >> 15) ^ (s.noiseLFSR >> 12) ^ (s.noiseLFSR >> 11) ^ (s.noiseLFSR >> 10)) & 1
	s.noiseLFSR = (s.noiseLFSR << 1) | bitOut
}
