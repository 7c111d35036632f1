package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"localchat/internal/domain"
	"localchat/internal/rag"
	"localchat/internal/stream"
)

// session mantiene el token y la conversación activa del CLI.
type session struct {
	server         string
	http           *http.Client
	token          string
	conversationID string
	pacer          stream.Pacer
	logger         *zap.Logger
	rag            *rag.Client
	out            io.Writer
}

func newSession(server string, pacing time.Duration, logger *zap.Logger, out io.Writer) *session {
	return &session{
		server:         strings.TrimRight(server, "/"),
		http:           &http.Client{},
		conversationID: uuid.NewString(),
		pacer:          stream.FixedPacing(pacing),
		logger:         logger,
		out:            out,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	server, _ := cmd.Flags().GetString("server")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	register, _ := cmd.Flags().GetBool("register")
	pacing, _ := cmd.Flags().GetDuration("pacing")
	ragPrefix, _ := cmd.Flags().GetString("rag-prefix")

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if username == "" {
		if username, err = line.Prompt("username: "); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = line.PasswordPrompt("password: "); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s := newSession(server, pacing, logger, os.Stdout)
	if register {
		if err := s.register(ctx, username, password); err != nil {
			return err
		}
	}
	if err := s.login(ctx, username, password); err != nil {
		return err
	}
	s.rag = rag.NewClient(s.server+ragPrefix, 60*time.Second, logger).WithToken(s.token)

	fmt.Fprintf(s.out, "logged in as %s, conversation %s\n", username, s.conversationID)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == "/quit" {
			return nil
		}
		if err := s.dispatch(ctx, input); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *session) dispatch(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/rag":
		ans, err := s.rag.Query(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, ans.Answer)
		for _, src := range ans.Sources {
			fmt.Fprintf(s.out, "  - %s p.%s (%.2f)\n", src.FileName, src.PageLabel, src.Score)
		}
		return nil
	case "/docs":
		list, err := s.rag.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, d := range list.Documents {
			fmt.Fprintf(s.out, "  %s (%d bytes)\n", d.Filename, d.Size)
		}
		fmt.Fprintf(s.out, "%d documents, %d indexed\n", list.TotalCount, list.IndexedCount)
		return nil
	case "/upload":
		return s.upload(ctx, arg)
	}

	// Ctrl-C sólo se intercepta mientras hay un turno en curso.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-turnCtx.Done():
		}
	}()

	msg, err := s.chat(turnCtx, line)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out)
	if msg.Interrupted {
		fmt.Fprintln(s.out, "[interrupted]")
		s.cancelRemote(ctx)
	}
	return nil
}

func (s *session) upload(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := rag.ValidateUpload(path, info.Size()); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	name, err := s.rag.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "uploaded %s\n", name)
	return nil
}

// chat envía un turno y lo imprime a medida que llegan los fragmentos.
func (s *session) chat(ctx context.Context, content string) (domain.ChatMessage, error) {
	body, err := json.Marshal(map[string]any{
		"conversation_id": s.conversationID,
		"message":         content,
		"stream":          true,
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.ChatMessage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ChatMessage{Role: domain.RoleAssistant, Interrupted: true}, nil
		}
		return domain.ChatMessage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ChatMessage{}, apiError(resp)
	}

	dec := &stream.EventDecoder{}
	consumer := stream.NewConsumer(dec,
		stream.WithPacer(s.pacer),
		stream.WithLogger(s.logger),
		stream.WithOnDelta(func(d stream.Delta) {
			fmt.Fprint(s.out, d.Content)
		}),
	)
	res, err := consumer.Consume(ctx, resp.Body)
	if err != nil {
		return res.Message(time.Now().UTC()), err
	}
	if res.Interrupted || dec.Final == nil {
		return res.Message(time.Now().UTC()), nil
	}
	if dec.Err != "" {
		fmt.Fprint(s.out, dec.Final.Content)
	}
	return *dec.Final, nil
}

func (s *session) cancelRemote(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+"/api/chat/"+s.conversationID+"/cancel", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Debug("cancel request failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

func (s *session) register(ctx context.Context, username, password string) error {
	var out struct {
		Message string `json:"message"`
	}
	return s.postJSON(ctx, "/api/auth/register", map[string]string{"username": username, "password": password}, &out)
}

func (s *session) login(ctx context.Context, username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := s.postJSON(ctx, "/api/auth/login", map[string]string{"username": username, "password": password}, &out); err != nil {
		return err
	}
	if out.Token == "" {
		return errors.New("login returned no token")
	}
	s.token = out.Token
	return nil
}

func (s *session) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%s (status %d)", body.Message, resp.StatusCode)
}
