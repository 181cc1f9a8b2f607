// Package main provides the command-line client for the mood player server.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/moodmelody/internal/api/rest"
)

var (
	app    = kingpin.New("moodcli", "Mood player client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token").Envar("MOODMELODY_API_TOKEN").String()

	statusCmd = app.Command("status", "Show the current status")

	loginCmd  = app.Command("login", "Sign in")
	loginName = loginCmd.Arg("name", "Display name").Required().String()

	logoutCmd = app.Command("logout", "Sign out")

	emotionCmd   = app.Command("emotion", "Set the emotion manually")
	emotionLabel = emotionCmd.Arg("emotion", "happy, sad, angry, surprised, neutral, fearful or disgusted").Required().String()

	scanCmd   = app.Command("scan", "Trigger an immediate scan")
	nextCmd   = app.Command("next", "Skip to the next song")
	prevCmd   = app.Command("prev", "Go back to the previous song")
	toggleCmd = app.Command("toggle", "Toggle play and pause")

	seekCmd     = app.Command("seek", "Seek within the current song")
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	playCmd    = app.Command("play", "Play a song by ID")
	playSongID = playCmd.Arg("song-id", "Song ID").Required().String()

	favoriteCmd    = app.Command("favorite", "Toggle a favorite")
	favoriteSongID = favoriteCmd.Arg("song-id", "Song ID").Required().String()

	queueCmd   = app.Command("queue", "Show the queue")
	historyCmd = app.Command("history", "Show the play history")

	streamCmd      = app.Command("stream", "Control the camera stream")
	streamStartCmd = streamCmd.Command("start", "Start streaming")
	streamStopCmd  = streamCmd.Command("stop", "Stop streaming")

	privacyCmd    = app.Command("privacy", "Control privacy mode")
	privacyOnCmd  = privacyCmd.Command("on", "Enable privacy mode")
	privacyOffCmd = privacyCmd.Command("off", "Disable privacy mode")

	watchCmd = app.Command("watch", "Watch server events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{
		baseURL: strings.TrimRight(*server, "/"),
		token:   *token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = showStatus(ctx, c)
	case loginCmd.FullCommand():
		var u rest.UserDTO
		if err = c.do(ctx, http.MethodPost, "/api/session/login", map[string]string{"name": *loginName}, &u); err == nil {
			fmt.Printf("Signed in as %s <%s>\n", u.Name, u.Email)
		}
	case logoutCmd.FullCommand():
		if err = c.do(ctx, http.MethodPost, "/api/session/logout", nil, nil); err == nil {
			fmt.Println("Signed out")
		}
	case emotionCmd.FullCommand():
		err = postStatus(ctx, c, "/api/emotion", map[string]string{"emotion": *emotionLabel})
	case scanCmd.FullCommand():
		var resp struct {
			Accepted bool `json:"accepted"`
		}
		if err = c.do(ctx, http.MethodPost, "/api/scan", nil, &resp); err == nil {
			if resp.Accepted {
				fmt.Println("Scan started")
			} else {
				fmt.Println("Scan not started (gated or cooling down)")
			}
		}
	case nextCmd.FullCommand():
		err = postPlayer(ctx, c, "/api/player/next", nil)
	case prevCmd.FullCommand():
		err = postPlayer(ctx, c, "/api/player/previous", nil)
	case toggleCmd.FullCommand():
		err = postPlayer(ctx, c, "/api/player/toggle", nil)
	case seekCmd.FullCommand():
		err = postPlayer(ctx, c, "/api/player/seek", map[string]float64{"seconds": *seekSeconds})
	case playCmd.FullCommand():
		err = postPlayer(ctx, c, "/api/player/play/"+*playSongID, nil)
	case favoriteCmd.FullCommand():
		var resp struct {
			ID       string `json:"id"`
			Favorite bool   `json:"favorite"`
		}
		if err = c.do(ctx, http.MethodPost, "/api/session/favorites/"+*favoriteSongID, nil, &resp); err == nil {
			fmt.Printf("%s favorite: %v\n", resp.ID, resp.Favorite)
		}
	case queueCmd.FullCommand():
		err = listSongs(ctx, c, "/api/player/queue")
	case historyCmd.FullCommand():
		err = listSongs(ctx, c, "/api/player/history")
	case streamStartCmd.FullCommand():
		err = postStatus(ctx, c, "/api/streaming/start", nil)
	case streamStopCmd.FullCommand():
		err = postStatus(ctx, c, "/api/streaming/stop", nil)
	case privacyOnCmd.FullCommand():
		err = postStatus(ctx, c, "/api/privacy", map[string]bool{"enabled": true})
	case privacyOffCmd.FullCommand():
		err = postStatus(ctx, c, "/api/privacy", map[string]bool{"enabled": false})
	case watchCmd.FullCommand():
		err = watch(c)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(rest.APITokenHeader, c.token)
	}
	return req, nil
}

// do sends a JSON request and decodes the response into out when out is non-nil.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return errors.Newf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return errors.Newf("HTTP %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func showStatus(ctx context.Context, c *client) error {
	var status rest.StatusDTO
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return err
	}
	printStatus(&status)
	return nil
}

func postStatus(ctx context.Context, c *client, path string, body any) error {
	var status rest.StatusDTO
	if err := c.do(ctx, http.MethodPost, path, body, &status); err != nil {
		return err
	}
	printStatus(&status)
	return nil
}

func postPlayer(ctx context.Context, c *client, path string, body any) error {
	var pb rest.PlaybackDTO
	if err := c.do(ctx, http.MethodPost, path, body, &pb); err != nil {
		return err
	}
	printPlayback(pb)
	return nil
}

func listSongs(ctx context.Context, c *client, path string) error {
	var songs []rest.SongDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &songs); err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for i, s := range songs {
		marker := " "
		if s.TopTier {
			marker = "*"
		}
		fmt.Printf("%3d %s %-14s %s - %s\n", i+1, marker, s.ID, s.Artist, s.Title)
	}
	return nil
}

func printStatus(s *rest.StatusDTO) {
	if s.User != nil {
		fmt.Printf("User: %s <%s> (%d favorites)\n", s.User.Name, s.User.Email, len(s.User.Favorites))
	} else {
		fmt.Println("User: (signed out)")
	}
	printPlayback(s.Playback)

	d := s.Detector
	fmt.Printf("Detector: %s (streaming=%v privacy=%v analysis=%v camera=%s open=%v)\n",
		d.State, d.Streaming, d.Privacy, d.AnalysisActive, d.Permission, d.CameraOpen)
	if d.Notice != "" {
		fmt.Printf("  Notice: %s\n", d.Notice)
	}
	if d.CooldownUntil != nil {
		fmt.Printf("  Cooldown until: %s\n", d.CooldownUntil.Local().Format(time.TimeOnly))
	}
	if d.LastObservation != nil {
		fmt.Printf("  Last observation: %s (%.2f) at %s\n",
			d.LastObservation.Emotion, d.LastObservation.Confidence, d.LastObservation.At.Local().Format(time.TimeOnly))
	}
	if s.Feedback {
		fmt.Println("Feedback: no mood detected yet, set one with 'moodcli emotion <label>'")
	}
	if s.Inference != nil {
		fmt.Printf("Inference: %s %d requests, %d failed, %d over quota\n",
			s.Inference.Backend, s.Inference.TotalRequests, s.Inference.Failed, s.Inference.QuotaExceeded)
	}
}

func printPlayback(p rest.PlaybackDTO) {
	fmt.Printf("Playback: %s [%s] queue=%d\n", p.State, p.Emotion, p.QueueLength)
	if p.Current != nil {
		fmt.Printf("  Now: %s - %s (%s / %s)\n",
			p.Current.Artist, p.Current.Title, formatSeconds(p.Position), formatSeconds(p.Duration))
	}
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func watch(c *client) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so the client timeout does not apply.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("subscribe failed: HTTP %d", resp.StatusCode)
	}

	fmt.Println("Subscribed to events. Press Ctrl+C to exit.")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var n rest.NotificationDTO
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			fmt.Printf("Bad event: %v\n", err)
			continue
		}
		printNotification(&n)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "stream error")
	}
	return nil
}

func printNotification(n *rest.NotificationDTO) {
	fmt.Printf("\n[Sequence: %d] === %s ===\n", n.SequenceNo, strings.ToUpper(strings.ReplaceAll(n.Type, "_", " ")))
	if n.Message != "" {
		fmt.Printf("  %s\n", n.Message)
	}
	if n.Status != nil {
		printStatus(n.Status)
	}
}
