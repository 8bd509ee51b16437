package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/tsingmao/vidlaunch/internal/logger"
)

// BuildImage builds an image from a local build context and tags it ref.
//
// The context directory is sent to the daemon as a tar stream. Build output
// is decoded from the daemon's JSON message stream and rendered to out; a
// failed build step surfaces as the returned error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ref: Tag for the built image
//   - contextDir: Build context directory
//   - dockerfile: Build definition path relative to contextDir
//   - exclude: Extra context-relative paths left out of the context, on top
//     of the .dockerignore patterns
//   - out: Destination for build output (may be nil)
//
// Returns:
//   - nil once the image is built and tagged
//   - Error if the context cannot be read or the build fails
func (e *DockerEngine) BuildImage(ctx context.Context, ref, contextDir, dockerfile string, exclude []string, out io.Writer) error {
	if ref == "" {
		return fmt.Errorf("image name cannot be empty")
	}
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if out == nil {
		out = io.Discard
	}

	if _, err := os.Stat(filepath.Join(contextDir, dockerfile)); err != nil {
		return fmt.Errorf("build definition not found: %w", err)
	}

	buildCtx, err := TarBuildContext(contextDir, dockerfile, exclude)
	if err != nil {
		return err
	}
	defer buildCtx.Close()

	logger.Info("Building Docker image %s from %s", ref, contextDir)

	resp, err := e.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  filepath.ToSlash(dockerfile),
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// DisplayJSONMessagesStream returns the first error message sent by the
	// daemon, which is how a failing RUN step is reported.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}

	logger.Info("Successfully built Docker image: %s", ref)
	return nil
}

// TarBuildContext archives contextDir the way the docker CLI does: paths
// matched by .dockerignore or listed in exclude are left out, while the
// Dockerfile and .dockerignore themselves are always sent.
func TarBuildContext(contextDir, dockerfile string, exclude []string) (io.ReadCloser, error) {
	patterns, err := readDockerignore(contextDir)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, exclude...)
	if len(patterns) > 0 {
		patterns = append(patterns, "!"+filepath.ToSlash(dockerfile), "!.dockerignore")
	}

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{
		ExcludePatterns: patterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	return buildCtx, nil
}

func readDockerignore(contextDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(contextDir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read .dockerignore: %w", err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .dockerignore: %w", err)
	}
	return patterns, nil
}
