package position

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// NMEAConfig holds configuration for a serial NMEA 0183 GPS receiver.
type NMEAConfig struct {
	PortPath string `yaml:"port_path"`
	BaudRate int    `yaml:"baud_rate"`
	// The maximum number of sentences read while waiting for a valid fix.
	MaxSentences int `yaml:"max_sentences"`
}

// PortOpener opens the byte stream a receiver writes sentences to.
type PortOpener func(ctx context.Context) (io.ReadCloser, error)

// NMEAProvider reads RMC and GGA sentences from a GPS receiver and reports the first valid fix.
type NMEAProvider struct {
	open          PortOpener
	max_sentences int
	mu            sync.Mutex
}

// NewNMEAProvider returns a NMEAProvider that opens 'cfg.PortPath' using go.bug.st/serial.
func NewNMEAProvider(cfg NMEAConfig) *NMEAProvider {

	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {

		mode := &serial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}

		port, err := serial.Open(cfg.PortPath, mode)

		if err != nil {
			return nil, fmt.Errorf("Failed to open %s, %w", cfg.PortPath, err)
		}

		err = port.SetReadTimeout(200 * time.Millisecond)

		if err != nil {
			port.Close()
			return nil, fmt.Errorf("Failed to set read timeout on %s, %w", cfg.PortPath, err)
		}

		slog.Debug("Connected to GPS receiver", "port", cfg.PortPath, "baud", cfg.BaudRate)
		return port, nil
	}

	return NewNMEAProviderWithOpener(open, cfg.MaxSentences)
}

// NewNMEAProviderWithOpener returns a NMEAProvider that reads sentences from the stream returned by 'open'.
func NewNMEAProviderWithOpener(open PortOpener, max_sentences int) *NMEAProvider {

	if max_sentences <= 0 {
		max_sentences = 20
	}

	p := &NMEAProvider{
		open:          open,
		max_sentences: max_sentences,
	}

	return p
}

func (p *NMEAProvider) Name() string {
	return "nmea"
}

// CurrentPosition opens the receiver and scans sentences until an active RMC or a GGA with a fix
// is found.
func (p *NMEAProvider) CurrentPosition(ctx context.Context) (Position, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	port, err := p.open(ctx)

	if err != nil {
		return Position{}, fmt.Errorf("%w, %w", ErrPositionUnavailable, err)
	}

	defer port.Close()

	scanner := bufio.NewScanner(port)

	for i := 0; i < p.max_sentences; i++ {

		select {
		case <-ctx.Done():
			return Position{}, fmt.Errorf("%w, %w", ErrPositionUnavailable, ctx.Err())
		default:
			// pass
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())

		pos, ok := parseSentence(line)

		if ok {
			return pos, nil
		}
	}

	err = scanner.Err()

	if err != nil {
		return Position{}, fmt.Errorf("%w, failed to read sentences, %w", ErrPositionUnavailable, err)
	}

	return Position{}, fmt.Errorf("No valid fix after %d sentences, %w", p.max_sentences, ErrPositionUnavailable)
}

func parseSentence(line string) (Position, bool) {

	if !strings.HasPrefix(line, "$") {
		return Position{}, false
	}

	if !validChecksum(line) {
		return Position{}, false
	}

	parts := splitSentence(line)

	switch parts[0] {
	case "GPRMC", "GNRMC":

		// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh

		if len(parts) < 7 || parts[2] != "A" {
			return Position{}, false
		}

		return parseCoords(parts[3], parts[4], parts[5], parts[6])

	case "GPGGA", "GNGGA":

		// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh

		if len(parts) < 7 {
			return Position{}, false
		}

		fix, err := strconv.Atoi(parts[6])

		if err != nil || fix == 0 {
			return Position{}, false
		}

		return parseCoords(parts[2], parts[3], parts[4], parts[5])

	default:
		return Position{}, false
	}
}

func parseCoords(raw_lat string, lat_dir string, raw_lon string, lon_dir string) (Position, bool) {

	lat, ok := parseCoord(raw_lat, lat_dir)

	if !ok {
		return Position{}, false
	}

	lon, ok := parseCoord(raw_lon, lon_dir)

	if !ok {
		return Position{}, false
	}

	return Position{Latitude: lat, Longitude: lon}, true
}

// parseCoord converts NMEA (d)ddmm.mmmm notation to decimal degrees.
func parseCoord(raw string, dir string) (float64, bool) {

	if raw == "" || dir == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)

	if err != nil {
		return 0, false
	}

	deg := math.Floor(v / 100)
	min := v - deg*100

	dd := deg + min/60

	if dir == "S" || dir == "W" {
		dd = -dd
	}

	return dd, true
}

// splitSentence strips the leading '$' and trailing checksum and splits on commas.
func splitSentence(line string) []string {

	idx := strings.Index(line, "*")

	if idx >= 0 {
		line = line[:idx]
	}

	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// validChecksum checks the XOR checksum after '*'.
func validChecksum(line string) bool {

	idx := strings.Index(line, "*")

	if idx < 0 || idx+3 > len(line) {
		return false
	}

	body := line[1:idx]

	var calc byte

	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}

	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)

	if err != nil {
		return false
	}

	return calc == byte(expected)
}
