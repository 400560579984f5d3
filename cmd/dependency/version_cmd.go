/*
 *     Copyright 2024 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dependency

import (
	"fmt"

	"github.com/spf13/cobra"

	"d7y.io/peerprobe/version"
)

// VersionCmd prints the build metadata.
var VersionCmd = &cobra.Command{
	Use:               "version",
	Short:             "show version",
	Long:              `show the version details of peerprobe.`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Major:%s Minor:%s\n", version.Major, version.Minor)
		fmt.Fprintf(cmd.OutOrStdout(), "GitVersion:%s GitCommit:%s\n", version.GitVersion, version.GitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "Platform:%s GoVersion:%s BuildTime:%s\n", version.Platform, version.GoVersion, version.BuildTime)
	},
}
