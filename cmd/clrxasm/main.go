// Copyright 2025 clrxasm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command clrxasm assembles CLRX-dialect GCN/RDNA source into one of the
// four AMD container formats, grounded on the teacher's cobra root-command
// wiring in main.go.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/clrxng/clrxasm/internal/asmcfg"
	"github.com/clrxng/clrxasm/internal/clrxlog"
	"github.com/clrxng/clrxasm/internal/finalize"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:  "clrxasm source [-o output]",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		gpuType, _ := cmd.Flags().GetString("gpu-type")
		binaryFormat, _ := cmd.Flags().GetString("binary-format")
		driverVersion, _ := cmd.Flags().GetString("driver-version")
		llvmVersion, _ := cmd.Flags().GetString("llvm-version")
		is64Bit, _ := cmd.Flags().GetBool("64bit")
		targetOS, _ := cmd.Flags().GetString("target-os")
		defines, _ := cmd.Flags().GetStringSlice("define")
		includePaths, _ := cmd.Flags().GetStringSlice("include-path")
		force, _ := cmd.Flags().GetBool("force")
		verbose, _ := cmd.Flags().GetBool("verbose")
		unified, _ := cmd.Flags().GetBool("unified-sgpr-count")

		if output == "" {
			output = args[0] + ".o"
		}

		opts, err := asmcfg.New(output, gpuType, binaryFormat, targetOS, driverVersion, llvmVersion,
			is64Bit, force, verbose, defines, includePaths)
		if err != nil {
			return err
		}
		if unified {
			opts.Policy = finalize.PolicyUnifiedSGPRCount
		}

		clrxlog.Verbose = verbose

		if _, statErr := os.Stat(output); statErr == nil && !force {
			return fmt.Errorf("output file %q already exists, use -f to overwrite", output)
		}

		return assembleFile(args[0], opts)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print clrxasm's version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("clrxasm", version)
	},
}

func init() {
	rootCmd.Flags().StringP("output", "o", "", "output file path")
	rootCmd.Flags().StringP("gpu-type", "g", "bonaire", "target GPU device codename")
	rootCmd.Flags().StringP("binary-format", "b", "amd", "output container format: amd, amdcl2, gallium, rocm")
	rootCmd.Flags().StringP("driver-version", "d", "", "AMD driver version to assume (major.minor[.patch])")
	rootCmd.Flags().String("llvm-version", "", "LLVM version to assume (major.minor[.patch])")
	rootCmd.Flags().BoolP("64bit", "6", runtime.GOARCH == "amd64", "assemble for a 64-bit address space")
	rootCmd.Flags().StringP("target-os", "t", runtime.GOOS, "target operating system")
	rootCmd.Flags().StringSliceP("define", "D", nil, "define a preprocessor symbol (NAME[=VALUE])")
	rootCmd.Flags().StringSliceP("include-path", "I", nil, "additional .include/.incbin search path")
	rootCmd.Flags().BoolP("force", "f", false, "overwrite the output file if it already exists")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable verbose diagnostics")
	rootCmd.Flags().Bool("unified-sgpr-count", false, "apply the unified-SGPR-count register policy (spec §8.1)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer clrxlog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
