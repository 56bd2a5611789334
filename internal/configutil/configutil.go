// Package configutil resolves settings with flag-over-config precedence:
// an explicitly set cobra flag wins, otherwise the viper key (config file or
// ASKBOT_* env) is used, otherwise the flag default.
package configutil

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return v
		}
	}
	return ""
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return v
		}
	}
	return 0
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return v
		}
	}
	return false
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && flagName != "" && cmd.Flags().Changed(flagName) {
		v, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd != nil && flagName != "" {
		v, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return v
		}
	}
	return 0
}

// RequiredString trims the resolved value and reports whether it is present.
func RequiredString(cmd *cobra.Command, flagName, viperKey string) (string, bool) {
	v := strings.TrimSpace(FlagOrViperString(cmd, flagName, viperKey))
	return v, v != ""
}
