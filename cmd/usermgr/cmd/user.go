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
	"sort"
	"strings"

	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user pool users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user with a permanent password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userUpdateCmd = &cobra.Command{
	Use:   "update <username>",
	Short: "Overwrite user attributes",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserUpdate,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Set a user's password",
	Long: `Set a user's password. Without --permanent the user must change it at
next sign-in.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserPasswd,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userExistsCmd = &cobra.Command{
	Use:   "exists <username>",
	Short: "Report whether a user exists",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserExists,
}

var userListCmd = &cobra.Command{
	Use:     "list <groupname>",
	Aliases: []string{"ls"},
	Short:   "List the members of a group",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserList,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userExistsCmd)
	userCmd.AddCommand(userListCmd)

	userAddCmd.Flags().String("password", "", "Permanent password")
	userAddCmd.MarkFlagRequired("password")
	userAddCmd.Flags().StringToString("attr", nil, "User attribute as name=value (repeatable)")

	userUpdateCmd.Flags().StringToString("attr", nil, "User attribute as name=value (repeatable)")
	userUpdateCmd.MarkFlagRequired("attr")

	userPasswdCmd.Flags().String("password", "", "New password")
	userPasswdCmd.MarkFlagRequired("password")
	userPasswdCmd.Flags().Bool("permanent", false, "Set the password as permanent")

	userListCmd.Flags().Int64("limit", manager.DefaultListLimit, "Maximum number of users to return")
	userListCmd.Flags().String("next-token", "", "Pagination token (only the first page is returned)")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	password, _ := cmd.Flags().GetString("password")
	attrs, _ := cmd.Flags().GetStringToString("attr")

	sub, err := um.AddUser(ctx, args[0], password, attrs)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Created user %s (sub %s)\n", args[0], sub)
	return nil
}

func runUserUpdate(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	attrs, _ := cmd.Flags().GetStringToString("attr")
	if len(attrs) == 0 {
		return fmt.Errorf("at least one --attr is required")
	}

	if err := um.UpdateUser(ctx, args[0], attrs); err != nil {
		return err
	}
	fmt.Printf("✅ Updated user %s\n", args[0])
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	password, _ := cmd.Flags().GetString("password")
	permanent, _ := cmd.Flags().GetBool("permanent")

	if err := um.SetPassword(ctx, args[0], password, permanent); err != nil {
		return err
	}
	fmt.Printf("✅ Password set for %s (permanent=%t)\n", args[0], permanent)
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	if err := um.DeleteUser(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("✅ Deleted user %s\n", args[0])
	return nil
}

func runUserExists(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	exists, err := um.IsExistUser(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(exists)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	um, err := userManager()
	if err != nil {
		return err
	}
	ctx, cancel := operationContext(cmd)
	defer cancel()

	limit, _ := cmd.Flags().GetInt64("limit")
	nextToken, _ := cmd.Flags().GetString("next-token")

	page, err := um.ListUsers(ctx, args[0], limit, nextToken)
	if err != nil {
		return err
	}

	if len(page.Users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(userTable(page)).Render()
	if page.Truncated {
		pterm.Warning.Printfln("More than %d members in %s, only the first page is shown", len(page.Users), args[0])
	}
	return nil
}

// userTable renders a page with one row per user.
func userTable(page *manager.UserPage) pterm.TableData {
	tableData := pterm.TableData{
		{"USERNAME", "SUB", "STATUS", "ENABLED", "CREATED", "ATTRIBUTES"},
	}

	for _, u := range page.Users {
		created := "-"
		if !u.CreatedAt.IsZero() {
			created = u.CreatedAt.UTC().Format("2006-01-02 15:04")
		}
		tableData = append(tableData, []string{
			u.Username,
			u.Sub,
			u.Status,
			fmt.Sprintf("%t", u.Enabled),
			created,
			formatAttributes(u.Attributes),
		})
	}
	return tableData
}

func formatAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k == "sub" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, ",")
}
