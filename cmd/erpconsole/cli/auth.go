package cli

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type sessionInfo struct {
	Username string `json:"username"`
	State    string `json:"state"`
}

func newLoginCommand(rt *runtime) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Autentica e guarda a sessão",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt.term.setPath("/login")
			username = strings.TrimSpace(username)
			if username == "" {
				return errors.New("login: informe o usuário com -u")
			}
			pass, err := resolvePassword(cmd, password)
			if err != nil {
				return err
			}
			if err := rt.session.Login(cmd.Context(), username, pass); err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(sessionInfo{Username: rt.session.Username(), State: rt.session.State().String()})
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "usuário")
	cmd.Flags().StringVarP(&password, "password", "p", "", "senha (padrão: $ERP_PASSWORD ou stdin)")
	return cmd
}

// resolvePassword prefers the flag, then ERP_PASSWORD, then the first line
// of stdin.
func resolvePassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("ERP_PASSWORD"); env != "" {
		return env, nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		if pass := strings.TrimRight(scanner.Text(), "\r"); pass != "" {
			return pass, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("login: senha não informada")
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Encerra a sessão",
		Args:  cobra.NoArgs,
		RunE: rt.guard(func(cmd *cobra.Command, _ []string) error {
			rt.session.Logout(cmd.Context())
			return nil
		}),
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostra o usuário da sessão",
		Args:  cobra.NoArgs,
		RunE: rt.guard(func(cmd *cobra.Command, _ []string) error {
			info := sessionInfo{Username: rt.session.Username(), State: rt.session.State().String()}
			if rt.out.json {
				return rt.out.encode(info)
			}
			rt.out.line("%s", info.Username)
			return nil
		}),
	}
}
