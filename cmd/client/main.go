package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/marianozunino/gatedrop/internal/policy"
	"github.com/marianozunino/gatedrop/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var client *Client

// APIError is the decoded error body returned by the server
type APIError struct {
	Status  int    `json:"-"`
	Title   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type LoginResponse struct {
	AccessToken string         `json:"accessToken"`
	User        model.Identity `json:"user"`
	Message     string         `json:"message"`
}

type UploadResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	File    model.FileDetails `json:"file"`
}

type UploadOptions struct {
	IsPublic      bool
	Password      string
	AvailableFrom string
	AvailableTo   string
	SharedWith    []string
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.BaseURL+strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func (c *Client) Login(email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.doJSON(http.MethodPost, "api/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout() error {
	return c.doJSON(http.MethodPost, "api/auth/logout", nil, nil)
}

func (c *Client) UploadFile(filePath string, opts UploadOptions) (*UploadResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fileWriter, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	writer.WriteField("isPublic", strconv.FormatBool(opts.IsPublic))
	fields := map[string]string{
		"password":      opts.Password,
		"availableFrom": opts.AvailableFrom,
		"availableTo":   opts.AvailableTo,
	}
	for key, value := range fields {
		if value != "" {
			writer.WriteField(key, value)
		}
	}
	for _, email := range opts.SharedWith {
		writer.WriteField("sharedWith", email)
	}
	writer.Close()

	req, err := c.newRequest(http.MethodPost, "api/files/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Info(token string) (*model.PublicFileInfo, error) {
	var resp struct {
		File model.PublicFileInfo `json:"file"`
	}
	if err := c.doJSON(http.MethodGet, "api/files/"+url.PathEscape(token), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.File, nil
}

// Download streams the file behind token into dst and returns the server-side filename
func (c *Client) Download(token, password string, dst io.Writer) (string, error) {
	req, err := c.newRequest(http.MethodGet, "api/files/"+url.PathEscape(token)+"/download", nil)
	if err != nil {
		return "", err
	}
	if password != "" {
		req.Header.Set("X-File-Password", password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	filename := token
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, nil
}

func (c *Client) DeleteFile(id string) error {
	return c.doJSON(http.MethodDelete, "api/files/info/"+url.PathEscape(id), nil, nil)
}

func (c *Client) MyFiles(q url.Values) (*model.MyFilesView, error) {
	path := "api/files/my"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp model.MyFilesView
	if err := c.doJSON(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPolicy() (*policy.Policy, error) {
	var resp policy.Policy
	if err := c.doJSON(http.MethodGet, "api/admin/policy", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) UpdatePolicy(update policy.Patch) (*policy.Policy, error) {
	var resp struct {
		Message string        `json:"message"`
		Policy  policy.Policy `json:"policy"`
	}
	if err := c.doJSON(http.MethodPatch, "api/admin/policy", update, &resp); err != nil {
		return nil, err
	}
	return &resp.Policy, nil
}

func (c *Client) Cleanup() (*model.CleanupResult, error) {
	var resp model.CleanupResult
	if err := c.doJSON(http.MethodPost, "api/admin/cleanup", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("Jan 2, 2006 at 3:04 PM")
}

func formatHoursRemaining(hours *float64) string {
	if hours == nil {
		return ""
	}
	h := *hours
	switch {
	case h <= 0:
		return "expired"
	case h < 1:
		return "less than an hour"
	case h < 48:
		return fmt.Sprintf("%d hours", int(h))
	default:
		return fmt.Sprintf("%d days", int(h/24))
	}
}

func printUploadResponse(resp *UploadResponse) {
	f := resp.File
	fmt.Printf("Upload successful!\n")
	fmt.Printf("ID: %s\n", f.ID)
	fmt.Printf("Name: %s\n", f.Filename)
	fmt.Printf("Size: %s\n", utils.FormatFileSize(f.Size))
	fmt.Printf("Share token: %s\n", f.ShareToken)
	if f.ShareLink != "" {
		fmt.Printf("Link: %s\n", f.ShareLink)
	}
	fmt.Printf("Available: %s - %s\n", formatDate(f.AvailableFrom), formatDate(f.AvailableTo))
	if remaining := formatHoursRemaining(f.HoursRemaining); remaining != "" {
		fmt.Printf("Status: %s (%s remaining)\n", f.Status, remaining)
	}
}

func printFileInfo(f *model.PublicFileInfo) {
	fmt.Printf("Name: %s\n", f.FileName)
	fmt.Printf("Size: %s\n", utils.FormatFileSize(f.FileSize))
	fmt.Printf("Type: %s\n", f.MimeType)
	fmt.Printf("Status: %s\n", f.Status)
	fmt.Printf("Public: %t\n", f.IsPublic)
	fmt.Printf("Password: %t\n", f.HasPassword)
	fmt.Printf("Available: %s - %s\n", formatDate(f.AvailableFrom), formatDate(f.AvailableTo))
}

func printPolicy(p *policy.Policy) {
	fmt.Printf("max_file_size_mb: %d\n", p.MaxFileSizeMB)
	fmt.Printf("min_validity_hours: %d\n", p.MinValidityHours)
	fmt.Printf("max_validity_days: %d\n", p.MaxValidityDays)
	fmt.Printf("default_validity_days: %d\n", p.DefaultValidityDays)
	fmt.Printf("require_password_min_length: %d\n", p.RequirePasswordMinLength)
}

var rootCmd = &cobra.Command{
	Use:   "gatedrop",
	Short: "GateDrop client - share files with access rules",
	Long: `GateDrop client is a command-line tool for a GateDrop server.

Quick start:
  gatedrop config set server https://drop.example.com/
  gatedrop login alice@example.com --password secret
  gatedrop upload report.pdf --share bob@example.com --to 48h
  gatedrop download abc123 -o report.pdf`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		baseURL := viper.GetString("server")
		if baseURL == "" {
			baseURL = "http://localhost:8080/"
		}
		client = NewClient(baseURL, viper.GetString("token"))
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store the access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			return fmt.Errorf("--password is required")
		}
		resp, err := client.Login(args[0], password)
		if err != nil {
			return err
		}
		if err := saveConfigValue("token", resp.AccessToken); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", resp.User.Email, resp.User.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if client.Token == "" {
			fmt.Println("Not logged in")
			return nil
		}
		if err := client.Logout(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if err := saveConfigValue("token", ""); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file",
	Long: `Upload a file with optional access rules.

Times accept hours from now (48h or 48), RFC3339, ISO date or datetime.

Examples:
  gatedrop upload notes.txt --public
  gatedrop upload plan.pdf --share bob@example.com --share carol@example.com
  gatedrop upload secret.zip --password hunter22 --from 2025-07-01 --to 2025-07-08`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := UploadOptions{}
		opts.IsPublic, _ = cmd.Flags().GetBool("public")
		opts.Password, _ = cmd.Flags().GetString("password")
		opts.AvailableFrom, _ = cmd.Flags().GetString("from")
		opts.AvailableTo, _ = cmd.Flags().GetString("to")
		opts.SharedWith, _ = cmd.Flags().GetStringArray("share")

		resp, err := client.UploadFile(args[0], opts)
		if err != nil {
			return err
		}
		printUploadResponse(resp)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <token>",
	Short: "Show what a share token points to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := client.Info(args[0])
		if err != nil {
			return err
		}
		printFileInfo(info)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <token>",
	Short: "Download a shared file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		output, _ := cmd.Flags().GetString("output")

		tmp, err := os.CreateTemp(".", ".gatedrop-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		filename, err := client.Download(args[0], password, tmp)
		tmp.Close()
		if err != nil {
			return err
		}
		if output == "" {
			output = filepath.Base(filename)
		}
		if err := os.Rename(tmp.Name(), output); err != nil {
			return fmt.Errorf("failed to save file: %w", err)
		}
		fmt.Printf("Saved %s\n", output)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteFile(args[0]); err != nil {
			return err
		}
		fmt.Println("File deleted successfully")
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List your files",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, name := range []string{"status", "sort", "order"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				key := name
				if name == "sort" {
					key = "sortBy"
				}
				q.Set(key, v)
			}
		}
		if page, _ := cmd.Flags().GetInt("page"); page > 0 {
			q.Set("page", strconv.Itoa(page))
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}

		result, err := client.MyFiles(q)
		if err != nil {
			return err
		}
		for _, f := range result.Files {
			fmt.Printf("%s  %-8s  %s  %s\n", f.ID, f.Status, f.ShareToken, f.FileName)
		}
		s := result.Summary
		fmt.Printf("\nPage %d/%d, %d files (active %d, pending %d, expired %d)\n",
			result.Pagination.CurrentPage, result.Pagination.TotalPages, result.Pagination.TotalFiles,
			s.ActiveFiles, s.PendingFiles, s.ExpiredFiles)
		return nil
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show or change the upload policy (admin)",
}

var policyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := client.GetPolicy()
		if err != nil {
			return err
		}
		printPolicy(p)
		return nil
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change policy fields",
	Long: `Change one or more policy fields. Only the flags given are sent.

Example: gatedrop policy set --max-file-size-mb 50 --min-validity-hours 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update := policy.Patch{}
		flags := map[string]**int{
			"max-file-size-mb":            &update.MaxFileSizeMB,
			"min-validity-hours":          &update.MinValidityHours,
			"max-validity-days":           &update.MaxValidityDays,
			"default-validity-days":       &update.DefaultValidityDays,
			"require-password-min-length": &update.RequirePasswordMinLength,
		}
		changed := false
		for name, field := range flags {
			if !cmd.Flags().Changed(name) {
				continue
			}
			v, _ := cmd.Flags().GetInt(name)
			*field = &v
			changed = true
		}
		if !changed {
			return fmt.Errorf("no policy fields given")
		}

		p, err := client.UpdatePolicy(update)
		if err != nil {
			return err
		}
		fmt.Println("Policy updated")
		printPolicy(p)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired files now (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.Cleanup()
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d files removed\n", result.Message, result.DeletedFiles)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  server  - Server URL (e.g., https://drop.example.com/)
  token   - Access token (normally set by login)

Example: gatedrop config set server https://drop.example.com/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := args[1]

		switch key {
		case "server", "token":
		default:
			return fmt.Errorf("unknown config key: %s", key)
		}

		if err := saveConfigValue(key, value); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value.

Example: gatedrop config get server`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		value := viper.GetString(key)

		if value == "" {
			fmt.Printf("%s is not set\n", key)
		} else {
			fmt.Printf("%s = %s\n", key, value)
		}
		return nil
	},
}

func configDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".gatedrop")
}

func saveConfigValue(key, value string) error {
	viper.Set(key, value)
	if err := os.MkdirAll(configDir(), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(filepath.Join(configDir(), "config.yaml")); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())
	viper.SetEnvPrefix("GATEDROP")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore errors if config file doesn't exist

	rootCmd.PersistentFlags().StringP("server", "s", "", "Server URL (default: http://localhost:8080/)")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	loginCmd.Flags().StringP("password", "p", "", "Account password (required)")

	uploadCmd.Flags().Bool("public", false, "Anyone with the link may download")
	uploadCmd.Flags().StringP("password", "p", "", "Require a password to download")
	uploadCmd.Flags().String("from", "", "Available from (default: now)")
	uploadCmd.Flags().String("to", "", "Available until (default: server policy)")
	uploadCmd.Flags().StringArray("share", nil, "Email allowed to download (repeatable)")

	downloadCmd.Flags().StringP("password", "p", "", "File password")
	downloadCmd.Flags().StringP("output", "o", "", "Output path (default: server filename)")

	lsCmd.Flags().String("status", "", "Filter by status: all, active, pending, expired")
	lsCmd.Flags().String("sort", "", "Sort by: createdAt or fileName")
	lsCmd.Flags().String("order", "", "Sort order: asc or desc")
	lsCmd.Flags().Int("page", 0, "Page number")
	lsCmd.Flags().Int("limit", 0, "Files per page")

	policySetCmd.Flags().Int("max-file-size-mb", 0, "Maximum upload size in MB")
	policySetCmd.Flags().Int("min-validity-hours", 0, "Minimum availability window in hours")
	policySetCmd.Flags().Int("max-validity-days", 0, "Maximum availability window in days")
	policySetCmd.Flags().Int("default-validity-days", 0, "Window used when no end is given")
	policySetCmd.Flags().Int("require-password-min-length", 0, "Minimum file password length")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)

	policyCmd.AddCommand(policyGetCmd)
	policyCmd.AddCommand(policySetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
