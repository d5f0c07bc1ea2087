// audioclient streams a WAV file to the recognizer in real time while a
// listening session is open, and prints the session events.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "speech-coordinator/internal/api/grpc"
	"speech-coordinator/internal/service/audio"
)

// 100ms chunks
const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit PCM)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	tone := flag.Bool("tone", false, "Write a 440Hz test tone to -audio before streaming")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	fs := afero.NewOsFs()

	if *tone {
		if err := audio.WriteWAV(fs, *audioFile, sineClip(16000, 440, 2*time.Second)); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write tone")
		}
		logger.Info().Str("file", *audioFile).Msg("Test tone written")
	}

	clip, err := audio.LoadWAV(fs, *audioFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load audio")
	}
	logger.Info().
		Int("sampleRate", clip.SampleRate).
		Int64("durationMs", clip.DurationMs()).
		Msg("WAV loaded")

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()
	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(clip.DurationMs())*time.Millisecond+30*time.Second)
	defer cancel()
	ctx = grpcapi.WithClientID(ctx, "audioclient")

	listen, err := client.Listen(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Listen failed")
	}

	// The recognizer opens its audio source before the first event.
	first, err := listen.Recv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Listen failed")
	}
	logger.Info().Fields(first.AsMap()).Msg("Event")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, err := listen.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("Listen stream failed")
				return
			}
			logger.Info().Fields(ev.AsMap()).Msg("Event")
		}
	}()

	stream, err := client.StreamAudio(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open audio stream")
	}

	bytesPerChunk := clip.SampleRate * 2 * int(chunkInterval/time.Millisecond) / 1000
	start := time.Now()
	chunks := clip.Chunks(bytesPerChunk)
	for i, chunk := range chunks {
		if err := stream.Send(chunk); err != nil {
			logger.Fatal().Err(err).Msg("Failed to send chunk")
		}
		if (i+1)%10 == 0 {
			logger.Debug().Int("chunk", i+1).Msg("Sent")
		}
		// Simulate real-time streaming
		time.Sleep(chunkInterval)
	}
	if err := stream.CloseAndRecv(); err != nil {
		logger.Fatal().Err(err).Msg("Audio stream failed")
	}
	logger.Info().Int("chunks", len(chunks)).Dur("elapsed", time.Since(start)).Msg("Finished streaming")

	<-done
}

func sineClip(rate, freq int, d time.Duration) *audio.Clip {
	n := int(float64(rate) * d.Seconds())
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := int16(0.3 * math.MaxInt16 * math.Sin(2*math.Pi*float64(freq)*float64(i)/float64(rate)))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}
	return &audio.Clip{SampleRate: rate, PCM: pcm}
}
