// testclient opens one listening session over gRPC, prints its events and
// optionally speaks the result back.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "speech-coordinator/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	say := flag.String("say", "", "Speak this text instead of listening")
	echo := flag.Bool("echo", false, "Speak the recognized result back")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = grpcapi.WithClientID(ctx, "testclient")

	if *say != "" {
		id, err := client.Say(ctx, *say)
		if err != nil {
			logger.Fatal().Err(err).Msg("Say failed")
		}
		logger.Info().Str("utteranceId", id).Msg("Utterance queued")
		return
	}

	stream, err := client.Listen(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Listen failed")
	}
	logger.Info().Str("server", *serverAddr).Msg("Listening")

	var result string
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Stream failed")
		}
		fields := ev.AsMap()
		logger.Info().Fields(fields).Msg("Event")
		if text, ok := fields["text"].(string); ok {
			result = text
		}
	}

	logger.Info().Str("result", result).Msg("Session finished")
	if *echo && result != "" {
		if _, err := client.Say(ctx, result); err != nil {
			logger.Fatal().Err(err).Msg("Echo failed")
		}
	}
}
