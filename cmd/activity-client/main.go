package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/pkg/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP activity feed address")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	eventType := flag.String("type", "", "only show events of this type, e.g. review.created")
	flag.Parse()

	logger.Init("activity-client", true)

	for {
		if err := run(*addr, *pretty, *eventType); err != nil {
			log.Warn().Err(err).Str("addr", *addr).Msg("disconnected")
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(addr string, pretty bool, eventType string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Info().Str("addr", addr).Msg("connected")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()

		var ev activity.Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			// welcome banner or something else; print raw
			fmt.Println(string(line))
			continue
		}
		if eventType != "" && ev.Type != eventType {
			continue
		}

		if !pretty {
			fmt.Println(string(line))
			continue
		}
		b, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Println(string(b))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
