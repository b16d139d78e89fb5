package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	kakaoendpoint "golang.org/x/oauth2/kakao"
)

const kakaoProfileURL = "https://kapi.kakao.com/v2/user/me"

type Kakao struct {
	conf       *oauth2.Config
	profileURL string
	httpClient *http.Client
}

func NewKakao(opts Options) *Kakao {
	endpoint := kakaoendpoint.Endpoint
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	profileURL := opts.ProfileURL
	if profileURL == "" {
		profileURL = kakaoProfileURL
	}
	return &Kakao{
		conf: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     endpoint,
		},
		profileURL: profileURL,
		httpClient: opts.httpClient(),
	}
}

func (p *Kakao) Name() string { return "kakao" }

func (p *Kakao) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *Kakao) Exchange(ctx context.Context, code, _ string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return token, nil
}

func (p *Kakao) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	raw, status, err := getProfile(ctx, p.httpClient, p.profileURL, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: profile status %d", ErrProviderRejected, status)
	}
	var body struct {
		ID         externalID `json:"id"`
		Properties struct {
			Nickname     string `json:"nickname"`
			ProfileImage string `json:"profile_image"`
		} `json:"properties"`
		KakaoAccount struct {
			Profile struct {
				ProfileImageURL string `json:"profile_image_url"`
			} `json:"profile"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidResponse)
	}
	image := body.Properties.ProfileImage
	if image == "" {
		image = body.KakaoAccount.Profile.ProfileImageURL
	}
	return &Profile{
		ExternalID:      string(body.ID),
		Nickname:        body.Properties.Nickname,
		ProfileImageURL: image,
		Raw:             raw,
	}, nil
}
