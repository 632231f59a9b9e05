package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/mulgadc/usermgr/usermgr/awserrors"
)

// DefaultFunctionName is the executor function deployed alongside the pool.
const DefaultFunctionName = "usermgr"

// LambdaInvoker calls the executor as a synchronous Lambda invocation.
type LambdaInvoker struct {
	client       lambdaiface.LambdaAPI
	functionName string
}

// NewLambdaInvoker creates an invoker using a Lambda client built from sess.
func NewLambdaInvoker(sess client.ConfigProvider, functionName string) *LambdaInvoker {
	return NewLambdaInvokerWithClient(lambda.New(sess), functionName)
}

func NewLambdaInvokerWithClient(c lambdaiface.LambdaAPI, functionName string) *LambdaInvoker {
	if functionName == "" {
		functionName = DefaultFunctionName
	}
	return &LambdaInvoker{client: c, functionName: functionName}
}

// functionError is the body Lambda returns when the handler fails.
type functionError struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

func (l *LambdaInvoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	out, err := l.client.InvokeWithContext(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.functionName),
		InvocationType: aws.String(lambda.InvocationTypeRequestResponse),
		LogType:        aws.String(lambda.LogTypeTail),
		Payload:        payload,
	})
	if err != nil {
		return nil, awserrors.Remote("Invoke", err)
	}

	if out.LogResult != nil {
		if tail, err := base64.StdEncoding.DecodeString(*out.LogResult); err == nil {
			slog.Debug("Lambda execution log", "function", l.functionName, "log", string(tail))
		}
	}

	if out.FunctionError != nil {
		var fe functionError
		_ = json.Unmarshal(out.Payload, &fe)
		detail := fmt.Sprintf("%s: %s", aws.StringValue(out.FunctionError), string(out.Payload))
		if fe.ErrorMessage != "" {
			detail = fmt.Sprintf("%s: %s", fe.ErrorType, fe.ErrorMessage)
		}
		return nil, awserrors.RemoteCode("Invoke", awserrors.ErrorFunctionError, detail)
	}

	return out.Payload, nil
}

// Close is a no-op; the Lambda client holds no releasable resources.
func (l *LambdaInvoker) Close() error {
	return nil
}
