/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage user pool groups",
}

var groupAddCmd = &cobra.Command{
	Use:   "add <groupname>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		um, err := userManager()
		if err != nil {
			return err
		}
		ctx, cancel := operationContext(cmd)
		defer cancel()

		description, _ := cmd.Flags().GetString("description")
		if err := um.AddGroup(ctx, args[0], description); err != nil {
			return err
		}
		fmt.Printf("✅ Created group %s\n", args[0])
		return nil
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <groupname>",
	Short: "Delete a group; members are not deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		um, err := userManager()
		if err != nil {
			return err
		}
		ctx, cancel := operationContext(cmd)
		defer cancel()

		if err := um.DeleteGroup(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ Deleted group %s\n", args[0])
		return nil
	},
}

var groupAddUserCmd = &cobra.Command{
	Use:   "add-user <groupname> <username>",
	Short: "Add a user to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		um, err := userManager()
		if err != nil {
			return err
		}
		ctx, cancel := operationContext(cmd)
		defer cancel()

		if err := um.AddUserToGroup(ctx, args[1], args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ Added %s to %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupDeleteCmd)
	groupCmd.AddCommand(groupAddUserCmd)

	groupAddCmd.Flags().String("description", "", "Group description")
}
