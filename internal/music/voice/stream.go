package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// openStream launches ffmpeg decoding the locator into raw s16le PCM.
// The seek offset is passed as a pre-seek (-ss before -i) so skipped
// audio is never decoded. Returns the PCM reader and a cleanup func.
func openStream(streamURL string, seek time.Duration) (io.ReadCloser, func(), error) {
	args := []string{}
	if seek > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", seek.Seconds()))
	}
	args = append(args,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	cmd := exec.Command("ffmpeg", args...)
	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("command start error: %w", err)
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return reader, cleanup, nil
}

// streamFrames reads PCM from stream, encodes 20ms Opus frames and
// pushes them to the voice connection until the stream drains, stop is
// closed, or the transport fails. While paused holds true no frames are
// sent and the decoder is left waiting.
func streamFrames(stream io.Reader, vc *discordgo.VoiceConnection, stop <-chan struct{}, paused func() bool) (CompletionReason, error) {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return ReasonError, fmt.Errorf("encoder error: %w", err)
	}

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-stop:
			return ReasonStopped, nil
		default:
		}

		if paused() {
			select {
			case <-stop:
				return ReasonStopped, nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		_, err := io.ReadFull(stream, pcmBuf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ReasonFinished, nil
		}
		if err != nil {
			return ReasonError, fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			return ReasonError, fmt.Errorf("encode error: %w", err)
		}

		select {
		case vc.OpusSend <- opus:
		case <-stop:
			return ReasonStopped, nil
		}
	}
}
