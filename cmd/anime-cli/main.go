package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/realisereallies/anime/pkg/logger"
)

const defaultBaseURL = "http://localhost:8080"

type tokenData struct {
	Token string `json:"token"`
}

type authResponse struct {
	Token string `json:"token"`
}

func main() {
	logger.Init("anime-cli", true)

	global := flag.NewFlagSet("anime-cli", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("parse flags")
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	rest := []string{}
	if len(args) > 1 {
		sub = args[1]
		rest = args[2:]
	}

	client := &http.Client{Timeout: 15 * time.Second}
	api := strings.TrimRight(*baseURL, "/") + "/api"

	switch cmd {
	case "auth":
		handleAuth(ctx, client, api, *tokenPath, sub, rest)
	case "anime":
		handleAnime(ctx, client, api, sub, rest)
	case "reviews":
		handleReviews(ctx, client, api, *tokenPath, sub, rest)
	case "comments":
		handleComments(ctx, client, api, *tokenPath, sub, rest)
	case "react":
		handleReact(ctx, client, api, *tokenPath, sub, rest)
	case "favorites":
		handleFavorites(ctx, client, api, *tokenPath, sub, rest)
	case "profile":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/profile", mustToken(*tokenPath), nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("profile failed")
		}
		printJSON(resp)
	case "stats":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/stats", "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("stats failed")
		}
		printJSON(resp)
	case "watch":
		endpoint, err := websocketURL(*baseURL, "/ws")
		if err != nil {
			log.Fatal().Err(err).Msg("ws url")
		}
		token, _ := readToken(*tokenPath)
		if err := runWebSocket(endpoint, token); err != nil {
			log.Fatal().Err(err).Msg("watch failed")
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(ctx context.Context, client *http.Client, api, tokenPath, sub string, args []string) {
	switch sub {
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *email == "" || *password == "" {
			log.Fatal().Msg("email and password are required")
		}

		payload := map[string]string{"email": *email, "password": *password}
		var resp authResponse
		if err := doJSON(ctx, client, http.MethodPost, api+"/auth/login", "", payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatal().Err(err).Msg("save token")
		}
		fmt.Println("logged in")
	case "register":
		fs := flag.NewFlagSet("auth register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *name == "" || *email == "" || *password == "" {
			log.Fatal().Msg("name, email, and password are required")
		}

		payload := map[string]string{"name": *name, "email": *email, "password": *password}
		var resp authResponse
		if err := doJSON(ctx, client, http.MethodPost, api+"/auth/register", "", payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("register failed")
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatal().Err(err).Msg("save token")
		}
		fmt.Println("registered and logged in")
	case "logout":
		// revoke server side when we still hold a token
		if token, err := readToken(tokenPath); err == nil && token != "" {
			if err := doJSON(ctx, client, http.MethodPost, api+"/auth/logout", token, nil, nil); err != nil {
				log.Warn().Err(err).Msg("server logout failed")
			}
		}
		if err := clearToken(tokenPath); err != nil {
			log.Fatal().Err(err).Msg("logout failed")
		}
		fmt.Println("logged out")
	default:
		log.Fatal().Msg("usage: anime-cli auth <login|register|logout>")
	}
}

func handleAnime(ctx context.Context, client *http.Client, api, sub string, args []string) {
	switch sub {
	case "search":
		fs := flag.NewFlagSet("anime search", flag.ExitOnError)
		query := fs.String("q", "", "title search")
		minRating := fs.Float64("min-rating", 0, "minimum average rating")
		sort := fs.String("sort", "", "title|reviews|rating|recent")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		qv := url.Values{}
		if *query != "" {
			qv.Set("q", *query)
		}
		if *minRating > 0 {
			qv.Set("minRating", strconv.FormatFloat(*minRating, 'f', -1, 64))
		}
		if *sort != "" {
			qv.Set("sort", *sort)
		}
		qv.Set("limit", strconv.Itoa(*limit))
		qv.Set("offset", strconv.Itoa(*offset))

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/anime?"+qv.Encode(), "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("search failed")
		}
		printJSON(resp)
	case "show":
		fs := flag.NewFlagSet("anime show", flag.ExitOnError)
		title := fs.String("title", "", "anime title")
		_ = fs.Parse(args)
		if *title == "" {
			log.Fatal().Msg("title is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/anime/"+url.PathEscape(*title), "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("show failed")
		}
		printJSON(resp)
	default:
		log.Fatal().Msg("usage: anime-cli anime <search|show>")
	}
}

func handleReviews(ctx context.Context, client *http.Client, api, tokenPath, sub string, args []string) {
	switch sub {
	case "list":
		fs := flag.NewFlagSet("reviews list", flag.ExitOnError)
		anime := fs.String("anime", "", "anime title filter")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		qv := url.Values{}
		if *anime != "" {
			qv.Set("anime", *anime)
		}
		qv.Set("limit", strconv.Itoa(*limit))
		qv.Set("offset", strconv.Itoa(*offset))

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/reviews?"+qv.Encode(), "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("list failed")
		}
		printJSON(resp)
	case "show":
		fs := flag.NewFlagSet("reviews show", flag.ExitOnError)
		id := fs.String("id", "", "review id")
		_ = fs.Parse(args)
		if *id == "" {
			log.Fatal().Msg("id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/reviews/"+url.PathEscape(*id), "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("show failed")
		}
		printJSON(resp)
	case "create":
		fs := flag.NewFlagSet("reviews create", flag.ExitOnError)
		anime := fs.String("anime", "", "anime title")
		title := fs.String("title", "", "review title")
		body := fs.String("body", "", "review text")
		rating := fs.Int("rating", 0, "rating 1-5")
		_ = fs.Parse(args)
		if *anime == "" || *title == "" || *body == "" || *rating == 0 {
			log.Fatal().Msg("anime, title, body and rating are required")
		}

		payload := map[string]any{
			"animeTitle": *anime,
			"title":      *title,
			"body":       *body,
			"rating":     *rating,
		}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, api+"/reviews", mustToken(tokenPath), payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("create failed")
		}
		printJSON(resp)
	case "delete":
		fs := flag.NewFlagSet("reviews delete", flag.ExitOnError)
		id := fs.String("id", "", "review id")
		_ = fs.Parse(args)
		if *id == "" {
			log.Fatal().Msg("id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodDelete, api+"/reviews/"+url.PathEscape(*id), mustToken(tokenPath), nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("delete failed")
		}
		printJSON(resp)
	default:
		log.Fatal().Msg("usage: anime-cli reviews <list|show|create|delete>")
	}
}

func handleComments(ctx context.Context, client *http.Client, api, tokenPath, sub string, args []string) {
	fs := flag.NewFlagSet("comments "+sub, flag.ExitOnError)
	reviewID := fs.String("review", "", "review id")
	content := fs.String("content", "", "comment text")
	_ = fs.Parse(args)
	if *reviewID == "" {
		log.Fatal().Msg("review is required")
	}

	var resp map[string]any
	switch sub {
	case "list":
		if err := doJSON(ctx, client, http.MethodGet, api+"/comments?reviewId="+url.QueryEscape(*reviewID), "", nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("list failed")
		}
	case "add":
		if *content == "" {
			log.Fatal().Msg("content is required")
		}
		payload := map[string]string{"reviewId": *reviewID, "content": *content}
		if err := doJSON(ctx, client, http.MethodPost, api+"/comments", mustToken(tokenPath), payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("add failed")
		}
	default:
		log.Fatal().Msg("usage: anime-cli comments <list|add>")
	}
	printJSON(resp)
}

func handleReact(ctx context.Context, client *http.Client, api, tokenPath, sub string, args []string) {
	fs := flag.NewFlagSet("react "+sub, flag.ExitOnError)
	reviewID := fs.String("review", "", "review id")
	_ = fs.Parse(args)
	if *reviewID == "" {
		log.Fatal().Msg("review is required")
	}

	var resp map[string]any
	switch sub {
	case "like", "dislike", "remove":
		payload := map[string]string{"reviewId": *reviewID, "action": sub}
		if err := doJSON(ctx, client, http.MethodPost, api+"/likes", mustToken(tokenPath), payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("react failed")
		}
	case "show":
		token, _ := readToken(tokenPath)
		if err := doJSON(ctx, client, http.MethodGet, api+"/likes?reviewId="+url.QueryEscape(*reviewID), token, nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("show failed")
		}
	default:
		log.Fatal().Msg("usage: anime-cli react <like|dislike|remove|show>")
	}
	printJSON(resp)
}

func handleFavorites(ctx context.Context, client *http.Client, api, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "list":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, api+"/favorites", token, nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("list failed")
		}
		printJSON(resp)
	case "add":
		fs := flag.NewFlagSet("favorites add", flag.ExitOnError)
		anime := fs.String("anime", "", "anime title")
		poster := fs.String("poster", "", "poster URL")
		_ = fs.Parse(args)
		if *anime == "" {
			log.Fatal().Msg("anime is required")
		}

		payload := map[string]string{"animeTitle": *anime}
		if *poster != "" {
			payload["posterUrl"] = *poster
		}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, api+"/favorites", token, payload, &resp); err != nil {
			log.Fatal().Err(err).Msg("add failed")
		}
		printJSON(resp)
	case "remove":
		fs := flag.NewFlagSet("favorites remove", flag.ExitOnError)
		id := fs.String("id", "", "favorite id")
		_ = fs.Parse(args)
		if *id == "" {
			log.Fatal().Msg("id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodDelete, api+"/favorites/"+url.PathEscape(*id), token, nil, &resp); err != nil {
			log.Fatal().Err(err).Msg("remove failed")
		}
		printJSON(resp)
	default:
		log.Fatal().Msg("usage: anime-cli favorites <list|add|remove>")
	}
}

// runWebSocket prints the activity feed. With a saved login the feed
// also carries the user's own reactions and favorites.
func runWebSocket(wsURL, token string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("url", wsURL).Bool("authenticated", token != "").Msg("watching activity")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("json")
	}
	fmt.Println(string(b))
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.anime-token.json"
	}
	return filepath.Join(home, ".anime", "token.json")
}

func saveToken(path, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

func mustToken(path string) string {
	token, err := readToken(path)
	if err != nil {
		log.Fatal().Err(err).Msg("token not found, please login")
	}
	if token == "" {
		log.Fatal().Msg("token empty, please login")
	}
	return token
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}

func printUsage() {
	fmt.Println("anime-cli [-api URL] [-token path] <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  auth login|register|logout")
	fmt.Println("  anime search|show")
	fmt.Println("  reviews list|show|create|delete")
	fmt.Println("  comments list|add")
	fmt.Println("  react like|dislike|remove|show")
	fmt.Println("  favorites list|add|remove")
	fmt.Println("  profile")
	fmt.Println("  stats")
	fmt.Println("  watch")
}
