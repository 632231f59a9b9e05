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
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/mulgadc/usermgr/usermgr/handlers/activity"
	"github.com/mulgadc/usermgr/usermgr/handlers/jwks"
	"github.com/mulgadc/usermgr/usermgr/invoke"
	"github.com/mulgadc/usermgr/usermgr/manager"
	"github.com/mulgadc/usermgr/usermgr/utils"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function",
	Long: `Run one of the usermgr Lambda entry points. These commands only work inside
the Lambda runtime, which supplies the invocation API.`,
}

var lambdaUsermgrCmd = &cobra.Command{
	Use:   "usermgr",
	Short: "Remote executor invoked by the AWS_LAMBDA provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		um, err := registry.Get(manager.ProviderCognito, appConfig)
		if err != nil {
			return err
		}
		dispatcher, err := invoke.NewDispatcher(um)
		if err != nil {
			return err
		}

		slog.Info("Starting usermgr Lambda handler", "user_pool_id", appConfig.Cognito.UserPoolID)
		lambda.Start(dispatcher.HandleLambda)
		return nil
	},
}

var lambdaActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Pre token generation trigger recording the last sign-in",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		sess, err := utils.NewAWSSession(appConfig.AWS)
		if err != nil {
			return err
		}
		h, err := activity.NewFromConfig(sess, appConfig.Activity)
		if err != nil {
			return err
		}

		slog.Info("Starting activity Lambda handler", "table", appConfig.Activity.TableName)
		lambda.Start(h.Handle)
		return nil
	},
}

var lambdaJWKSCmd = &cobra.Command{
	Use:   "jwks",
	Short: "Return the user pool's JSON Web Key Set",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		f, err := jwks.New(appConfig.JWKSURL(), utils.NewHTTPClient())
		if err != nil {
			return err
		}

		slog.Info("Starting JWKS Lambda handler", "url", appConfig.JWKSURL())
		lambda.Start(f.Handle)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
	lambdaCmd.AddCommand(lambdaUsermgrCmd)
	lambdaCmd.AddCommand(lambdaActivityCmd)
	lambdaCmd.AddCommand(lambdaJWKSCmd)
}
