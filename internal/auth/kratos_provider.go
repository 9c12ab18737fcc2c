package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	kratos "github.com/ory/kratos-client-go"
)

// KratosProvider はOry Kratosのネイティブ（API）フローを使うIdentityProvider。
// ブラウザのCookieではなくセッショントークンで認証状態を扱う。
type KratosProvider struct {
	client *kratos.APIClient
	logger *slog.Logger
}

// NewKratosProvider はKratosのPublic APIに接続するKratosProviderを生成する。
func NewKratosProvider(baseURL string, timeout time.Duration, logger *slog.Logger) *KratosProvider {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{
			URL: strings.TrimRight(baseURL, "/"),
		},
	}
	configuration.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	return &KratosProvider{
		client: kratos.NewAPIClient(configuration),
		logger: logger,
	}
}

// SignIn はログインフローを作成し、パスワードで送信する。
func (p *KratosProvider) SignIn(ctx context.Context, email, password string) (*ProviderSession, error) {
	flow, httpResp, err := p.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, p.toProviderError(err, httpResp, "create_login_flow")
	}

	body := kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	})

	resp, httpResp, err := p.client.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		return nil, p.toProviderError(err, httpResp, "submit_login_flow")
	}

	session := resp.GetSession()
	result := &ProviderSession{Token: resp.GetSessionToken()}
	if session.Identity != nil {
		result.Identity = identityFromKratos(session.Identity)
	}
	return p.completeIdentity(ctx, result)
}

// SignUp は登録フローを作成し、email traitとパスワードで送信する。
// Kratosの設定でセッションが発行されない場合は続けてログインする。
func (p *KratosProvider) SignUp(ctx context.Context, email, password string) (*ProviderSession, error) {
	flow, httpResp, err := p.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return nil, p.toProviderError(err, httpResp, "create_registration_flow")
	}

	body := kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   map[string]interface{}{"email": email},
	})

	resp, httpResp, err := p.client.FrontendAPI.
		UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(body).
		Execute()
	if err != nil {
		return nil, p.toProviderError(err, httpResp, "submit_registration_flow")
	}

	token := resp.GetSessionToken()
	if token == "" {
		p.logger.Info("registration returned no session, signing in",
			slog.String("identity_id", resp.Identity.Id),
		)
		return p.SignIn(ctx, email, password)
	}

	return &ProviderSession{
		Token:    token,
		Identity: identityFromKratos(&resp.Identity),
	}, nil
}

// SignOut はネイティブログアウトでセッショントークンを失効させる。
func (p *KratosProvider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	httpResp, err := p.client.FrontendAPI.
		PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		return p.toProviderError(err, httpResp, "native_logout")
	}
	return nil
}

// Whoami はセッショントークンからidentityを取得する。
func (p *KratosProvider) Whoami(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, &ProviderError{Message: "session token is empty"}
	}

	session, httpResp, err := p.client.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		return nil, p.toProviderError(err, httpResp, "whoami")
	}
	if session.Active != nil && !*session.Active {
		return nil, &ProviderError{Message: "session is not active", Status: http.StatusUnauthorized}
	}
	if session.Identity == nil {
		return nil, &ProviderError{Message: "missing identity in session"}
	}

	identity := identityFromKratos(session.Identity)
	return &identity, nil
}

// completeIdentity はレスポンスにidentityが含まれない場合にWhoamiで補う。
func (p *KratosProvider) completeIdentity(ctx context.Context, s *ProviderSession) (*ProviderSession, error) {
	if s.Identity.ID != "" {
		return s, nil
	}
	identity, err := p.Whoami(ctx, s.Token)
	if err != nil {
		return nil, err
	}
	s.Identity = *identity
	return s, nil
}

// identityFromKratos はKratosのidentityからIDとemail traitを取り出す。
func identityFromKratos(identity *kratos.Identity) Identity {
	out := Identity{ID: identity.Id}
	if traits, ok := identity.Traits.(map[string]interface{}); ok {
		if email, ok := traits["email"].(string); ok {
			out.Email = email
		}
	}
	return out
}

// toProviderError はKratos APIのエラーをProviderErrorに変換する。
// レスポンスボディからユーザー向けメッセージを取り出し、そのまま保持する。
func (p *KratosProvider) toProviderError(err error, httpResp *http.Response, operation string) error {
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}

	message := ""
	var apiErr *kratos.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		message = extractKratosMessage(apiErr.Body())
	}
	if message == "" {
		if status != 0 {
			message = fmt.Sprintf("Identity provider request failed (%d)", status)
		} else {
			message = err.Error()
		}
	}

	p.logger.Warn("kratos request failed",
		slog.String("operation", operation),
		slog.Int("http_status", status),
		slog.String("error", err.Error()),
	)

	return &ProviderError{Message: message, Status: status, Err: err}
}

// kratosErrorBody はKratosのエラーレスポンスのうちメッセージを含む部分。
// フロー送信の失敗時はui.messages / ui.nodes[].messagesに、
// それ以外はerror.message / error.reasonに入る。
type kratosErrorBody struct {
	UI *struct {
		Messages []kratosUIText `json:"messages"`
		Nodes    []struct {
			Messages []kratosUIText `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error *struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type kratosUIText struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// extractKratosMessage はエラーボディからユーザー向けメッセージを取り出す。
// 優先順位: ui.messages → ui.nodes[].messages → error.reason → error.message → reason → message
func extractKratosMessage(body []byte) string {
	var parsed kratosErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}

	if parsed.UI != nil {
		var texts []string
		for _, m := range parsed.UI.Messages {
			if m.Text != "" {
				texts = append(texts, m.Text)
			}
		}
		for _, n := range parsed.UI.Nodes {
			for _, m := range n.Messages {
				if m.Text != "" {
					texts = append(texts, m.Text)
				}
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, " ")
		}
	}

	if parsed.Error != nil {
		if parsed.Error.Reason != "" {
			return parsed.Error.Reason
		}
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
	}
	if parsed.Reason != "" {
		return parsed.Reason
	}
	return parsed.Message
}

var _ IdentityProvider = (*KratosProvider)(nil)
