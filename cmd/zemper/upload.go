package main

import (
	"context"
	"fmt"
	"os"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/captions"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/upload"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a single file to one platform",
}

// captionFlags are shared by upload and caption
type captionFlags struct {
	title      string
	transcript string
	part       int
	lang       string
}

func (f *captionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "video title")
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "SRT file to describe")
	cmd.Flags().IntVar(&f.part, "part", 0, "part number shown in the title")
	cmd.Flags().StringVar(&f.lang, "lang", "", "caption language")
}

func (f *captionFlags) request(platform string) models.CaptionRequest {
	return models.CaptionRequest{
		Platform:   platform,
		Title:      f.title,
		Transcript: workflow.TranscriptOf(f.transcript),
		Part:       f.part,
		Language:   f.lang,
	}
}

func newUploadCmd(platform string) *cobra.Command {
	var (
		flags     captionFlags
		thumbnail string
	)
	cmd := &cobra.Command{
		Use:   platform + " <file>",
		Short: "Upload a file to " + platform,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			target, ok := a.svc.Pipeline.Target(platform)
			if !ok {
				return fmt.Errorf("platform %s not configured", platform)
			}

			view := newProgress("Uploading")
			var up models.Upload
			err = a.interruptible(func(ctx context.Context) error {
				caption := a.svc.Pipeline.Caption(ctx, flags.request(platform))
				var err error
				up, err = target.Publish(ctx, upload.Item{
					Path:       args[0],
					Thumbnail:  thumbnail,
					Part:       flags.part,
					Caption:    caption,
					OnProgress: view.set,
				})
				return err
			})
			view.finish()
			if err != nil {
				return err
			}
			fmt.Println(up.URL)
			return nil
		},
	}
	flags.register(cmd)
	if platform == captions.PlatformYouTube {
		cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "thumbnail image")
	}
	return cmd
}

var captionOpts captionFlags

var captionPlatform string

var captionCmd = &cobra.Command{
	Use:   "caption",
	Short: "Write a caption for a video without uploading it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		caption, err := a.svc.Captions.Generate(cmd.Context(), captionOpts.request(captionPlatform))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		return printJSON(caption)
	},
}

func init() {
	for _, platform := range []string{
		captions.PlatformYouTube,
		upload.PlatformDrive,
		captions.PlatformTikTok,
		captions.PlatformInstagram,
		captions.PlatformWhatsApp,
	} {
		uploadCmd.AddCommand(newUploadCmd(platform))
	}

	captionOpts.register(captionCmd)
	captionCmd.Flags().StringVar(&captionPlatform, "platform", captions.PlatformYouTube, "platform the caption is for")
}
