// Package git はリモートリポジトリを一時ディレクトリへ取得する go-git ベースのクローナを提供する。
package git

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"

	"github.com/jinford/codeqa/internal/core/ingestion"
)

// DefaultDepth は取り込みに必要な最新コミットのみを取得する深さ
const DefaultDepth = 1

// Client は Git リポジトリのクローンを提供する
type Client struct {
	sshKeyPath  string
	sshPassword string
	depth       int
	progress    io.Writer
	logger      *slog.Logger
}

// Option は Client のオプション設定
type Option func(*Client)

// WithSSHKey は ssh リモートで使う秘密鍵を設定する
func WithSSHKey(path, password string) Option {
	return func(c *Client) {
		c.sshKeyPath = path
		c.sshPassword = password
	}
}

// WithDepth はクローンの深さを設定する。0 以下なら全履歴
func WithDepth(depth int) Option {
	return func(c *Client) {
		c.depth = depth
	}
}

// WithProgress は進捗の出力先を設定する
func WithProgress(w io.Writer) Option {
	return func(c *Client) {
		c.progress = w
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(opts ...Option) *Client {
	c := &Client{
		depth:  DefaultDepth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// インターフェース実装の確認
var _ ingestion.RepositoryCloner = (*Client)(nil)

// Clone はリポジトリを destDir にクローンする
func (c *Client) Clone(ctx context.Context, url, destDir string) error {
	auth, err := c.authFor(url)
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	opts := &git.CloneOptions{
		URL:          url,
		Auth:         auth,
		Progress:     c.progress,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if c.depth > 0 {
		opts.Depth = c.depth
	}

	repo, err := git.PlainCloneContext(ctx, destDir, false, opts)
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	if head, err := repo.Head(); err == nil {
		c.logger.Info("リポジトリをクローンしました", "url", url, "commit", head.Hash().String())
	}
	return nil
}

// authFor は ssh リモートの場合のみ鍵認証を返す
func (c *Client) authFor(url string) (transport.AuthMethod, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}

	u, err := giturls.Parse(url)
	if err != nil || u.Scheme != "ssh" {
		return nil, nil
	}

	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		return nil, nil
	}

	auth, err := ssh.NewPublicKeysFromFile("git", c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return auth, nil
}
