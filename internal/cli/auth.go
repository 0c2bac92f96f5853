package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bigkaa/mdclient/internal/apiclient"
)

// mePath — профиль текущего пользователя.
const mePath = "/api/me/"

// Me — профиль текущего пользователя.
type Me struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newLoginCommand() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token pair",
		Example: `  mdclient login --email admin@example.com
  echo "$PASSWORD" | mdclient login --email admin@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			if password == "" {
				password, err = readPassword(cmd, app.loc.T("cli.password_prompt"))
				if err != nil {
					return err
				}
			}

			if err := app.client.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.loc.Tf("login.ok", email))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword читает пароль без эха с терминала или первой строкой из stdin.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), prompt)
		data, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("чтение пароля: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("чтение пароля: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			if err := app.client.Logout(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.loc.T("logout.ok"))
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loggedInApp(cmd)
			if err != nil {
				return err
			}

			me, err := fetchMe(cmd.Context(), app.client)
			if err != nil {
				return err
			}

			rows := [][2]string{
				{"id", strconv.FormatInt(me.ID, 10)},
				{"username", me.Username},
				{"email", me.Email},
			}
			// Пара могла обновиться во время запроса
			if pair, ok := app.store.Read(); ok {
				if exp, ok := tokenExpiry(pair.Access); ok {
					rows = append(rows, [2]string{"access_expires", exp.Local().Format(time.DateTime)})
				}
				rows = append(rows, [2]string{"refresh", strconv.FormatBool(pair.CanRefresh())})
			}
			renderPairs(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func fetchMe(ctx context.Context, client *apiclient.Client) (Me, error) {
	var me Me
	err := client.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: mePath}, &me)
	return me, err
}

// tokenExpiry читает exp из access token без проверки подписи:
// ключ подписи есть только у backend.
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
