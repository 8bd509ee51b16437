package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsingmao/vidlaunch/internal/config"
	"github.com/tsingmao/vidlaunch/internal/runtime"
)

// EnsureImage makes sure launch.Image exists locally, building it from the
// configured build context when it does not (or when a rebuild is forced).
//
// A missing build definition is a precondition failure; a failing build is
// a launch failure. Builds are never retried.
func (l *Launcher) EnsureImage(ctx context.Context, launch config.Launch) error {
	build := l.cfg.Build

	if !build.Rebuild {
		exists, err := l.engine.ImageExists(ctx, launch.Image)
		if err != nil {
			return newError(KindRuntime, "check image", err, "")
		}
		if exists {
			fmt.Fprintf(l.out, "✓ Image %s found locally\n", launch.Image)
			return nil
		}
		fmt.Fprintf(l.out, "Image %s not found locally, building it\n", launch.Image)
	} else {
		fmt.Fprintf(l.out, "Rebuilding image %s\n", launch.Image)
	}

	contextDir := build.Context
	if runtime.IsGitURL(build.Context) {
		dir, cleanup, err := runtime.CloneBuildContext(ctx, build.Context, l.out)
		defer cleanup()
		if err != nil {
			return newError(KindPrecondition, "fetch build context", wrap(ErrBuildDefinitionMissing, err),
				fmt.Sprintf("Check that %s is reachable and the ref exists", build.Context))
		}
		contextDir = dir
	}

	definition := filepath.Join(contextDir, build.Dockerfile)
	if info, err := os.Stat(definition); err != nil || info.IsDir() {
		if err == nil {
			err = errors.New("is a directory")
		}
		return newError(KindPrecondition, "build image",
			wrap(ErrBuildDefinitionMissing, fmt.Errorf("%s: %w", definition, err)),
			fmt.Sprintf("Run vidlaunch from the directory containing %s, or pass --build-context", build.Dockerfile))
	}

	exclude := contextExcludes(contextDir, launch.OutputDir)
	if err := l.engine.BuildImage(ctx, launch.Image, contextDir, build.Dockerfile, exclude, l.out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(KindLaunch, "build image", wrap(ErrBuildFailed, err),
			"Fix the build definition or the environment it depends on, then run vidlaunch again")
	}

	fmt.Fprintf(l.out, "✓ Image %s built\n", launch.Image)
	return nil
}

// contextExcludes keeps the output directory out of the build context when
// it lies inside it, so generated videos are never sent to the daemon.
func contextExcludes(contextDir, outputDir string) []string {
	if outputDir == "" {
		return nil
	}
	absContext, err := filepath.Abs(contextDir)
	if err != nil {
		return nil
	}
	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(absContext, absOutput)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return []string{filepath.ToSlash(rel)}
}
