package cmd

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"sitescan/internal/uploads"
)

func newScanCmd(opts *options) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "scan <image-file>",
		Short: "Scan a local image and print the result as JSON",
		Example: `  sitescan scan ./photos/site.jpg
  sitescan scan --base-url https://cdn.example.com ./drill.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return eris.Wrapf(err, "read %s", args[0])
			}
			mime := http.DetectContentType(raw)
			if !strings.HasPrefix(mime, "image/") {
				return eris.Errorf("%s is not an image (%s)", args[0], mime)
			}
			decoded, err := uploads.ParseDataURI("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if baseURL == "" {
				baseURL = localBaseURL(opts.cfg.Server.Addr())
			}
			asset, err := a.uploads.Save(decoded, baseURL)
			if err != nil {
				return err
			}
			res, err := a.pipeline.Run(ctx, asset)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Payload())
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL used for the stored image (default http://localhost<server.address>)")

	return cmd
}

func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
